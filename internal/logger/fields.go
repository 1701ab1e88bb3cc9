package logger

import (
	"github.com/samber/oops"
	"go.uber.org/zap"
)

func RequestID(v string) zap.Field { return zap.String("request_id", v) }

func AccountID(v string) zap.Field { return zap.String("account_id", v) }

func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }

func Op(v string) zap.Field { return zap.String("op", v) }

func Component(v string) zap.Field { return zap.String("component", v) }

// Err logs err and, for oops errors, its code and context as separate fields.
func Err(err error) zap.Field {
	if oopsErr, ok := oops.AsOops(err); ok {
		return zap.Object("error", oopsField{err: oopsErr})
	}
	return zap.Error(err)
}
