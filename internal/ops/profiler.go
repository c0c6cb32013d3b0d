package ops

import (
	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// StartProfiler pushes continuous profiles to a pyroscope server. It returns
// a stop function; with an empty addr it does nothing.
func StartProfiler(app, addr string, tags map[string]string) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: app,
		ServerAddress:   addr,
		Tags:            tags,
		Logger:          profilerLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "start pyroscope").With("addr", addr)
	}
	return func() {
		if err := profiler.Stop(); err != nil {
			logs.Warnf("stop pyroscope, err: %+v", err)
		}
	}, nil
}

type profilerLogger struct{}

func (profilerLogger) Infof(_ string, _ ...interface{})  {}
func (profilerLogger) Debugf(_ string, _ ...interface{}) {}

func (profilerLogger) Errorf(format string, a ...interface{}) {
	logs.Errorf("pyroscope: "+format, a...)
}
