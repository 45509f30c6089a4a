package persist

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/EgorLis/apbot/internal/progress"
)

// Codec — формат снимка на диске.
type Codec interface {
	Ext() string
	Marshal(snap progress.Snapshot) ([]byte, error)
	Unmarshal(data []byte, snap *progress.Snapshot) error
}

func CodecFor(format string) (Codec, error) {
	switch format {
	case "", "json":
		return JSONCodec{}, nil
	case "proto":
		return ProtoCodec{}, nil
	}
	return nil, fmt.Errorf("unknown state format %q", format)
}

// JSONCodec — читаемый формат по умолчанию.
type JSONCodec struct{}

func (JSONCodec) Ext() string { return ".json" }

func (JSONCodec) Marshal(snap progress.Snapshot) ([]byte, error) {
	return json.MarshalIndent(&snap, "", "  ")
}

func (JSONCodec) Unmarshal(data []byte, snap *progress.Snapshot) error {
	return json.Unmarshal(data, snap)
}

// ProtoCodec — компактный бинарный формат: снимок кладётся в
// google.protobuf.Struct. Числа там double, id локаций Archipelago
// укладываются в 53 бита, так что потерь нет.
type ProtoCodec struct{}

func (ProtoCodec) Ext() string { return ".pb" }

func (ProtoCodec) Marshal(snap progress.Snapshot) ([]byte, error) {
	b, err := json.Marshal(&snap)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

func (ProtoCodec) Unmarshal(data []byte, snap *progress.Snapshot) error {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return err
	}
	b, err := json.Marshal(st.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(b, snap)
}
