package proto

import (
	"fmt"
	"math"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"
)

// Message is implemented by every request and response which travels over the wire as
// a google.protobuf.Struct. In JSON, a Struct is a plain object which allows clients to
// talk to semq with nothing more than curl.
type Message interface {
	ToStruct() (*structpb.Struct, error)
	FromStruct(*structpb.Struct) error
}

// fields reads typed values from a Struct. The first conversion error is recorded and
// all further reads return zero values, call Err() once done reading.
type fields struct {
	m   map[string]*structpb.Value
	err error
}

func newFields(s *structpb.Struct) *fields {
	if s == nil {
		return &fields{}
	}
	return &fields{m: s.GetFields()}
}

func (f *fields) Err() error {
	return f.err
}

func (f *fields) String(key string) string {
	v, ok := f.m[key]
	if !ok || f.err != nil {
		return ""
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_NullValue:
		return ""
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64)
	case *structpb.Value_BoolValue:
		return strconv.FormatBool(k.BoolValue)
	}
	f.err = fmt.Errorf("'%s' is invalid; expected a string", key)
	return ""
}

func (f *fields) Bool(key string) bool {
	v, ok := f.m[key]
	if !ok || f.err != nil {
		return false
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_BoolValue:
		return k.BoolValue
	case *structpb.Value_NullValue:
		return false
	case *structpb.Value_StringValue:
		b, err := strconv.ParseBool(k.StringValue)
		if err != nil {
			f.err = fmt.Errorf("'%s' is invalid; '%s' is not a boolean", key, k.StringValue)
		}
		return b
	}
	f.err = fmt.Errorf("'%s' is invalid; expected a boolean", key)
	return false
}

// Int returns 'def' if the key is not present
func (f *fields) Int(key string, def int) int {
	v, ok := f.m[key]
	if !ok || f.err != nil {
		return def
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		if k.NumberValue != math.Trunc(k.NumberValue) {
			f.err = fmt.Errorf("'%s' is invalid; expected an integer", key)
			return def
		}
		return int(k.NumberValue)
	case *structpb.Value_NullValue:
		return def
	case *structpb.Value_StringValue:
		i, err := strconv.Atoi(k.StringValue)
		if err != nil {
			f.err = fmt.Errorf("'%s' is invalid; '%s' is not an integer", key, k.StringValue)
			return def
		}
		return i
	}
	f.err = fmt.Errorf("'%s' is invalid; expected an integer", key)
	return def
}

func (f *fields) Struct(key string) *structpb.Struct {
	v, ok := f.m[key]
	if !ok || f.err != nil {
		return nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StructValue:
		return k.StructValue
	case *structpb.Value_NullValue:
		return nil
	}
	f.err = fmt.Errorf("'%s' is invalid; expected an object", key)
	return nil
}

func (f *fields) List(key string) []*structpb.Value {
	v, ok := f.m[key]
	if !ok || f.err != nil {
		return nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_ListValue:
		return k.ListValue.GetValues()
	case *structpb.Value_NullValue:
		return nil
	}
	f.err = fmt.Errorf("'%s' is invalid; expected a list", key)
	return nil
}

// setOptional only sets non-zero values, so optional request fields are omitted from the wire
func setOptional(m map[string]any, key string, v any) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return
		}
	case bool:
		if !t {
			return
		}
	}
	m[key] = v
}
