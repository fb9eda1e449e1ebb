package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type impl struct {
	name  string
	level zap.AtomicLevel
	cores []zapcore.Core

	sugared *zap.SugaredLogger
}

func newImpl(name string, level Level, cores ...zapcore.Core) *impl {
	imp := &impl{
		name:  name,
		level: zap.NewAtomicLevelAt(level.AsZap()),
		cores: cores,
	}
	imp.sugared = imp.build()
	return imp
}

func (imp *impl) build() *zap.SugaredLogger {
	var core zapcore.Core
	switch len(imp.cores) {
	case 0:
		core = zapcore.NewNopCore()
	case 1:
		core = imp.cores[0]
	default:
		core = zapcore.NewTee(imp.cores...)
	}
	// Level filtering happens in the logger so that subloggers sharing cores can differ.
	core = &levelCore{Core: core, level: imp.level}
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar().Named(imp.name)
}

// levelCore gates an underlying core on the logger's atomic level.
type levelCore struct {
	zapcore.Core
	level zap.AtomicLevel
}

func (c *levelCore) Enabled(lvl zapcore.Level) bool {
	return c.level.Enabled(lvl) && c.Core.Enabled(lvl)
}

func (c *levelCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelCore{Core: c.Core.With(fields), level: c.level}
}

func (c *levelCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.level.Enabled(entry.Level) {
		return checked
	}
	return c.Core.Check(entry, checked)
}

func (imp *impl) Sublogger(subname string) Logger {
	newName := subname
	if imp.name != "" {
		newName = fmt.Sprintf("%s.%s", imp.name, subname)
	}
	sub := &impl{
		name:  newName,
		level: zap.NewAtomicLevelAt(imp.level.Level()),
		cores: imp.cores,
	}
	sub.sugared = sub.build()
	return sub
}

func (imp *impl) SetLevel(level Level) {
	imp.level.SetLevel(level.AsZap())
}

func (imp *impl) GetLevel() Level {
	switch imp.level.Level() {
	case zapcore.DebugLevel:
		return DEBUG
	case zapcore.InfoLevel:
		return INFO
	case zapcore.WarnLevel:
		return WARN
	default:
		return ERROR
	}
}

func (imp *impl) AsZap() *zap.SugaredLogger {
	return imp.sugared
}

func (imp *impl) Sync() error {
	return imp.sugared.Sync()
}

func (imp *impl) Debug(args ...interface{}) {
	imp.sugared.Debug(args...)
}

func (imp *impl) Debugf(template string, args ...interface{}) {
	imp.sugared.Debugf(template, args...)
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	imp.sugared.Debugw(msg, keysAndValues...)
}

func (imp *impl) Info(args ...interface{}) {
	imp.sugared.Info(args...)
}

func (imp *impl) Infof(template string, args ...interface{}) {
	imp.sugared.Infof(template, args...)
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	imp.sugared.Infow(msg, keysAndValues...)
}

func (imp *impl) Warn(args ...interface{}) {
	imp.sugared.Warn(args...)
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	imp.sugared.Warnf(template, args...)
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	imp.sugared.Warnw(msg, keysAndValues...)
}

func (imp *impl) Error(args ...interface{}) {
	imp.sugared.Error(args...)
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	imp.sugared.Errorf(template, args...)
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	imp.sugared.Errorw(msg, keysAndValues...)
}
