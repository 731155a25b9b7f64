package main

import (
	"time"

	"mini-jsonrpc/server"
)

// Arith is the demo service.
type Arith struct{}

type Args struct {
	A, B int
}

type Reply struct {
	Result int
}

func (a *Arith) Add(args *Args, reply *Reply) error {
	reply.Result = args.A + args.B
	return nil
}

func (a *Arith) Sub(args *Args, reply *Reply) error {
	reply.Result = args.A - args.B
	return nil
}

func (a *Arith) Multiply(args *Args, reply *Reply) error {
	reply.Result = args.A * args.B
	return nil
}

func (a *Arith) Divide(args *Args, reply *Reply) error {
	if args.B == 0 {
		return &server.Error{Code: 1, Message: "division by zero", Data: args}
	}
	reply.Result = args.A / args.B
	return nil
}

// Sleep waits A milliseconds; handy for watching batch replies come back out of order.
func (a *Arith) Sleep(args *Args, reply *Reply) error {
	time.Sleep(time.Duration(args.A) * time.Millisecond)
	reply.Result = args.A
	return nil
}
