package httpapi

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/types"
)

// ── Toggle ───────────────────────────────────────────────────────────────────

// toggleRequestFromStruct reads key, code and pin from a protobuf Struct.
// Missing fields are left empty; non-string values are rejected.
func toggleRequestFromStruct(s *structpb.Struct) (types.ToggleRequest, error) {
	var req types.ToggleRequest
	fields := s.GetFields()
	for name, dst := range map[string]*string{"key": &req.Key, "code": &req.Code, "pin": &req.PIN} {
		v, ok := fields[name]
		if !ok {
			continue
		}
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return types.ToggleRequest{}, fmt.Errorf("field %q must be a string", name)
		}
		*dst = sv.StringValue
	}
	return req, nil
}

func resultToStruct(r types.Result) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"success": structpb.NewBoolValue(r.Success),
		"reason":  structpb.NewStringValue(r.Reason),
		"message": structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"text":     structpb.NewStringValue(r.Message.Text),
			"category": structpb.NewStringValue(r.Message.Category),
		}}),
	}}
}

// ── Errors ───────────────────────────────────────────────────────────────────

func errorToStruct(code, msg string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"error":   structpb.NewStringValue(code),
		"message": structpb.NewStringValue(msg),
	}}
}
