// Package rpc holds helpers shared by the hand-written gRPC contracts. Messages
// travel as protobuf well-known types so no generated code is needed.
package rpc

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func String(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func Bool(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

func Int(s *structpb.Struct, key string) int {
	return int(s.GetFields()[key].GetNumberValue())
}

func Strings(s *structpb.Struct, key string) []string {
	values := s.GetFields()[key].GetListValue().GetValues()
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.GetStringValue())
	}
	return out
}

// List converts a string slice into the []any form structpb.NewStruct accepts.
func List(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}

// ErrorMapping pairs a domain sentinel with the status code it travels as.
type ErrorMapping struct {
	Err  error
	Code codes.Code
}

// ToStatus converts a domain error into a gRPC status error.
func ToStatus(err error, mappings ...ErrorMapping) error {
	if err == nil {
		return nil
	}
	for _, m := range mappings {
		if errors.Is(err, m.Err) {
			return status.Error(m.Code, m.Err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}

// FromStatus converts a gRPC status error back into the matching domain sentinel.
func FromStatus(err error, mappings ...ErrorMapping) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, m := range mappings {
		if st.Code() == m.Code {
			return m.Err
		}
	}
	return err
}
