package logger

import (
	"fmt"

	"github.com/samber/oops"
	"go.uber.org/zap/zapcore"
)

type oopsField struct {
	err oops.OopsError
}

func (f oopsField) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("message", f.err.Error())
	if code := f.err.Code(); code != nil && code != "" {
		enc.AddString("code", fmt.Sprint(code))
	}
	for k, v := range f.err.Context() {
		if err := enc.AddReflected(k, v); err != nil {
			return err
		}
	}
	return nil
}
