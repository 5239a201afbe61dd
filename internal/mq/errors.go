package mq

import "errors"

var (
	// ErrNoChannel — канал ещё не открыт или соединение закрыто.
	ErrNoChannel = errors.New("no channel available")

	// ErrClosed — соединение закрыто вызовом Close.
	ErrClosed = errors.New("connection closed")
)
