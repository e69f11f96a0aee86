// Package nlog provides leveled logging for the cluster runtime.
package nlog

import (
	"github.com/golang/glog"
)

func Infof(format string, args ...any)    { glog.Infof(format, args...) }
func Warningf(format string, args ...any) { glog.Warningf(format, args...) }
func Errorf(format string, args ...any)   { glog.Errorf(format, args...) }

func Infoln(args ...any)    { glog.Infoln(args...) }
func Warningln(args ...any) { glog.Warningln(args...) }
func Errorln(args ...any)   { glog.Errorln(args...) }

// FastV reports whether verbose logging at the given level is enabled for
// module, without paying for the Sprintf-style formatting when it is not.
// module is reserved for future per-component gating.
func FastV(level int32, _ string) bool {
	return bool(glog.V(glog.Level(level)))
}

func Flush() { glog.Flush() }
