package dispatch

import "errors"

var (
	ErrConnectionFailed = errors.New("connection failed")
	ErrSchemaReadFailed = errors.New("schema read failed")
	ErrQueryFailed      = errors.New("query failed")
)
