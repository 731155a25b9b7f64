package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"mini-jsonrpc/codec"
)

type methodType struct {
	method    reflect.Method
	ArgType   reflect.Type
	ReplyType reflect.Type
}

type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

// newService 创建 service 并扫描所有合法方法
func newService(rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("rpc: rcvr must be a pointer, got %v", typ)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("rpc: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}
	srv := &service{
		name:   typ.Elem().Name(),
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	srv.registerMethods()
	if len(srv.method) == 0 {
		return nil, fmt.Errorf("rpc: %s has no methods of the form func(*Args, *Reply) error", srv.name)
	}
	return srv, nil
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// registerMethods keeps exported methods shaped (receiver, *Args, *Reply) error.
func (s *service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)
		if method.Type.NumIn() != 3 || method.Type.NumOut() != 1 || method.Type.Out(0) != errorType ||
			method.Type.In(1).Kind() != reflect.Ptr || method.Type.In(2).Kind() != reflect.Ptr {
			continue
		}

		s.method[method.Name] = &methodType{
			method:    method,
			ArgType:   method.Type.In(1).Elem(),
			ReplyType: method.Type.In(2).Elem(),
		}
	}
}

// decodeArgs fills a fresh *Args from params. Named params decode into the
// struct; positional params decode directly when Args is a slice or array,
// and a one-element array is unwrapped otherwise.
func (m *methodType) decodeArgs(c codec.Codec, params json.RawMessage) (reflect.Value, error) {
	argv := reflect.New(m.ArgType)
	params = bytes.TrimSpace(params)
	if len(params) == 0 || bytes.Equal(params, []byte("null")) {
		return argv, nil
	}
	if params[0] == '[' {
		kind := m.ArgType.Kind()
		if kind != reflect.Slice && kind != reflect.Array {
			var list []json.RawMessage
			if err := c.Decode(params, &list); err != nil {
				return argv, err
			}
			if len(list) != 1 {
				return argv, fmt.Errorf("expected 1 positional param, got %d", len(list))
			}
			params = list[0]
		}
	}
	if err := c.Decode(params, argv.Interface()); err != nil {
		return argv, err
	}
	return argv, nil
}

// call 通过反射调用方法
func (s *service) call(mType *methodType, argv, replyv reflect.Value) error {
	args := [3]reflect.Value{s.rcvr, argv, replyv}
	results := mType.method.Func.Call(args[:])
	if !results[0].IsNil() {
		return results[0].Interface().(error)
	}
	return nil
}
