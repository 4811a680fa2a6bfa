package codec

import (
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"
)

// reader is the minimal interface protodelim needs to find its own
// varint length prefix: a byte-at-a-time reader layered over a
// buffered net.Conn.
type reader interface {
	io.Reader
	io.ByteReader
}

func pbOf(v Value) *structpb.Value {
	if v.pb == nil {
		return structpb.NewNullValue()
	}
	return v.pb
}

func fieldsOf(m map[string]Value) map[string]*structpb.Value {
	out := make(map[string]*structpb.Value, len(m))
	for k, v := range m {
		out[k] = pbOf(v)
	}
	return out
}

func valuesOf(m map[string]*structpb.Value) map[string]Value {
	out := make(map[string]Value, len(m))
	for k, v := range m {
		out[k] = Value{pb: v}
	}
	return out
}

func str(s *structpb.Struct, key string) string {
	f := s.GetFields()[key]
	if f == nil {
		return ""
	}
	return f.GetStringValue()
}

func num(s *structpb.Struct, key string) uint64 {
	f := s.GetFields()[key]
	if f == nil {
		return 0
	}
	return uint64(f.GetNumberValue())
}

func flag(s *structpb.Struct, key string) bool {
	f := s.GetFields()[key]
	return f != nil && f.GetBoolValue()
}

// EncodeRequest writes r to w as a length-delimited structpb.Struct
// frame, the same framing EncodeReply and EncodeChangeEvent use so a
// single connection can carry either direction.
func EncodeRequest(w io.Writer, r Request) error {
	fields := map[string]*structpb.Value{
		"id": structpb.NewStringValue(r.ID),
		"op": structpb.NewStringValue(string(r.Op)),
	}
	if r.Key != "" {
		fields["key"] = structpb.NewStringValue(r.Key)
	}
	if !r.Value.IsNull() {
		fields["value"] = pbOf(r.Value)
	}
	if len(r.Keys) > 0 {
		fields["keys"] = structpb.NewStructValue(&structpb.Struct{Fields: fieldsOf(r.Keys)})
	}
	if r.Handler != "" {
		fields["handler"] = structpb.NewStringValue(r.Handler)
	}
	if !r.Args.IsNull() {
		fields["args"] = pbOf(r.Args)
	}
	return marshal(w, &structpb.Struct{Fields: fields})
}

// DecodeRequest reads one Request frame from r.
func DecodeRequest(r reader) (Request, error) {
	s, err := unmarshal(r)
	if err != nil {
		return Request{}, err
	}
	req := Request{
		ID:      str(s, "id"),
		Op:      Op(str(s, "op")),
		Key:     str(s, "key"),
		Value:   Value{pb: s.GetFields()["value"]},
		Handler: str(s, "handler"),
		Args:    Value{pb: s.GetFields()["args"]},
	}
	if keys := s.GetFields()["keys"].GetStructValue(); keys != nil {
		req.Keys = valuesOf(keys.GetFields())
	}
	return req, nil
}

// EncodeReply writes rep to w.
func EncodeReply(w io.Writer, rep Reply) error {
	fields := map[string]*structpb.Value{
		"id": structpb.NewStringValue(rep.ID),
		"ok": structpb.NewBoolValue(rep.OK),
	}
	if !rep.Value.IsNull() {
		fields["value"] = pbOf(rep.Value)
	}
	if len(rep.All) > 0 {
		fields["all"] = structpb.NewStructValue(&structpb.Struct{Fields: fieldsOf(rep.All)})
	}
	if rep.Revision > 0 {
		fields["revision"] = structpb.NewNumberValue(float64(rep.Revision))
	}
	if rep.ServerID != "" {
		fields["server_id"] = structpb.NewStringValue(rep.ServerID)
	}
	if rep.ErrKind != "" {
		fields["err_kind"] = structpb.NewStringValue(rep.ErrKind)
		fields["err_msg"] = structpb.NewStringValue(rep.ErrMsg)
	}
	return marshal(w, &structpb.Struct{Fields: fields})
}

// DecodeReply reads one Reply frame from r.
func DecodeReply(r reader) (Reply, error) {
	s, err := unmarshal(r)
	if err != nil {
		return Reply{}, err
	}
	rep := Reply{
		ID:       str(s, "id"),
		OK:       flag(s, "ok"),
		Value:    Value{pb: s.GetFields()["value"]},
		Revision: num(s, "revision"),
		ServerID: str(s, "server_id"),
		ErrKind:  str(s, "err_kind"),
		ErrMsg:   str(s, "err_msg"),
	}
	if all := s.GetFields()["all"].GetStructValue(); all != nil {
		rep.All = valuesOf(all.GetFields())
	}
	return rep, nil
}

// EncodeChangeEvent writes ev to w, the frame published on the fan-out
// channel after every commit.
func EncodeChangeEvent(w io.Writer, ev ChangeEvent) error {
	changes := make(map[string]*structpb.Value, len(ev.Changes))
	for key, c := range ev.Changes {
		changes[key] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"before":         pbOf(c.Before),
			"after":          pbOf(c.After),
			"existed_before": structpb.NewBoolValue(c.ExistedBefore),
			"exists_after":   structpb.NewBoolValue(c.ExistsAfter),
		}})
	}
	fields := map[string]*structpb.Value{
		"revision": structpb.NewNumberValue(float64(ev.Revision)),
		"changes":  structpb.NewStructValue(&structpb.Struct{Fields: changes}),
	}
	return marshal(w, &structpb.Struct{Fields: fields})
}

// DecodeChangeEvent reads one ChangeEvent frame from r.
func DecodeChangeEvent(r reader) (ChangeEvent, error) {
	s, err := unmarshal(r)
	if err != nil {
		return ChangeEvent{}, err
	}
	ev := ChangeEvent{
		Revision: num(s, "revision"),
		Changes:  map[string]KeyChange{},
	}
	changes := s.GetFields()["changes"].GetStructValue()
	for key, v := range changes.GetFields() {
		cs := v.GetStructValue()
		ev.Changes[key] = KeyChange{
			Before:        Value{pb: cs.GetFields()["before"]},
			After:         Value{pb: cs.GetFields()["after"]},
			ExistedBefore: flag(cs, "existed_before"),
			ExistsAfter:   flag(cs, "exists_after"),
		}
	}
	return ev, nil
}

func marshal(w io.Writer, s *structpb.Struct) error {
	if _, err := protodelim.MarshalTo(w, s); err != nil {
		return fmt.Errorf("codec: marshal frame: %w", err)
	}
	return nil
}

func unmarshal(r reader) (*structpb.Struct, error) {
	s := &structpb.Struct{}
	if err := protodelim.UnmarshalFrom(r, s); err != nil {
		return nil, fmt.Errorf("codec: unmarshal frame: %w", err)
	}
	return s, nil
}
