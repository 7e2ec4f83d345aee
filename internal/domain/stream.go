package domain

import (
	"errors"
	"strconv"
)

var ErrInvalidStreamCode = errors.New("invalid stream code")

type StreamKind byte

const (
	StreamRoom    StreamKind = 'R'
	StreamPrivate StreamKind = 'P'
)

// StreamCode names a live call: "R<roomid>" for a room call, "P<friendid>" for a private one.
type StreamCode string

func NewStreamCode(kind StreamKind, id int64) StreamCode {
	return StreamCode(string(rune(kind)) + strconv.FormatInt(id, 10))
}

func (c StreamCode) Parse() (StreamKind, int64, error) {
	if len(c) < 2 {
		return 0, 0, ErrInvalidStreamCode
	}
	kind := StreamKind(c[0])
	if kind != StreamRoom && kind != StreamPrivate {
		return 0, 0, ErrInvalidStreamCode
	}
	id, err := strconv.ParseInt(string(c[1:]), 10, 64)
	if err != nil || id <= 0 {
		return 0, 0, ErrInvalidStreamCode
	}
	return kind, id, nil
}
