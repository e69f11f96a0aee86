package cluster

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/tidwall/buntdb"

	"github.com/clusterd/clusterd/cmn"
	"github.com/clusterd/clusterd/cmn/nlog"
)

const nodeKeyPrefix = "node:"

// Registry is the master's set of connected workers, backed by an
// in-memory indexed buntdb store so that §4.I's get_nodes/get_health can
// query it directly instead of the registry hand-rolling its own index.
type Registry struct {
	db *buntdb.DB
}

func NewRegistry() (*Registry, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open registry store")
	}
	return &Registry{db: db}, nil
}

func (r *Registry) Close() error { return r.db.Close() }

// Add inserts node, rejecting a pre-existing entry with the same name
// (duplicate connections are rejected at handshake time).
func (r *Registry) Add(node *Snode) error {
	b, err := jsoniter.Marshal(node)
	if err != nil {
		return errors.Wrap(err, "failed to marshal node")
	}
	return r.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(nodeKeyPrefix + node.Name); err == nil {
			return cmn.NewError(cmn.ProtocolUnknownCommand, "worker %q already connected", node.Name)
		}
		_, _, err := tx.Set(nodeKeyPrefix+node.Name, string(b), nil)
		return err
	})
}

func (r *Registry) Remove(name string) {
	err := r.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(nodeKeyPrefix + name)
		return err
	})
	if err != nil && !errors.Is(err, buntdb.ErrNotFound) {
		nlog.Warningf("cluster: failed to remove %s from registry: %v", name, err)
	}
}

func (r *Registry) Get(name string) (*Snode, bool) {
	var node Snode
	err := r.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(nodeKeyPrefix + name)
		if err != nil {
			return err
		}
		return jsoniter.Unmarshal([]byte(val), &node)
	})
	if err != nil {
		return nil, false
	}
	return &node, true
}

// List returns every connected node, sorted by key (buntdb's default
// Ascend order), matching get_nodes's stable-order expectation.
func (r *Registry) List() []*Snode {
	var nodes []*Snode
	_ = r.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(nodeKeyPrefix+"*", func(key, value string) bool {
			if !strings.HasPrefix(key, nodeKeyPrefix) {
				return true
			}
			var n Snode
			if err := jsoniter.Unmarshal([]byte(value), &n); err == nil {
				nodes = append(nodes, &n)
			}
			return true
		})
	})
	return nodes
}

func (r *Registry) Count() int { return len(r.List()) }
