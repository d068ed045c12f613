package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"connectrpc.com/connect"
)

// Fully-qualified service names; procedures are "/<service>/<method>".
const (
	AuthServiceName       = "limitly.v1.AuthService"
	UserServiceName       = "limitly.v1.UserService"
	GroupServiceName      = "limitly.v1.GroupService"
	ExpenseServiceName    = "limitly.v1.ExpenseService"
	SettlementServiceName = "limitly.v1.SettlementService"
	InsightServiceName    = "limitly.v1.InsightService"
)

// Procedure returns the HTTP path of a service method.
func Procedure(service, method string) string {
	return "/" + service + "/" + method
}

// JSONCodec carries plain Go structs as JSON on the Connect wire. It replaces
// Connect's protobuf-JSON codec, so the messages need no generated code.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (JSONCodec) Unmarshal(data []byte, msg any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(msg)
}

// procedureSet collects the unary handlers of one service under its path prefix.
type procedureSet struct {
	service string
	mux     *http.ServeMux
	opts    []connect.HandlerOption
}

func newProcedureSet(service string, opts []connect.HandlerOption) *procedureSet {
	return &procedureSet{
		service: service,
		mux:     http.NewServeMux(),
		opts:    append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...),
	}
}

// handle registers fn as the unary handler for method.
func handle[Req, Res any](p *procedureSet, method string, fn func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error)) {
	procedure := Procedure(p.service, method)
	p.mux.Handle(procedure, connect.NewUnaryHandler(procedure, fn, p.opts...))
}

// mount returns the path prefix and handler to register on the server mux.
func (p *procedureSet) mount() (string, http.Handler) {
	return "/" + p.service + "/", p.mux
}
