package logging

import "go.uber.org/zap"

// Leveled adapts a zap logger to the key/value logger interface used by
// hashicorp/go-retryablehttp.
type Leveled struct {
	s *zap.SugaredLogger
}

func NewLeveled(l *zap.Logger) *Leveled {
	return &Leveled{s: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *Leveled) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

func (l *Leveled) Warn(msg string, keysAndValues ...interface{}) {
	l.s.Warnw(msg, keysAndValues...)
}

func (l *Leveled) Info(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

func (l *Leveled) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

// Printf adapts a zap logger to the printf-style logger interface used by resty.
type Printf struct {
	s *zap.SugaredLogger
}

func NewPrintf(l *zap.Logger) *Printf {
	return &Printf{s: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (p *Printf) Errorf(format string, v ...interface{}) {
	p.s.Errorf(format, v...)
}

func (p *Printf) Warnf(format string, v ...interface{}) {
	p.s.Warnf(format, v...)
}

func (p *Printf) Debugf(format string, v ...interface{}) {
	p.s.Debugf(format, v...)
}
