// Package feedtest builds GTFS-Realtime captures for tests.
package feedtest

import (
	"testing"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
)

// Vehicle returns an entity carrying a vehicle position with only the
// required fields set.
func Vehicle(id string, lat, lng float32) *gtfs.FeedEntity {
	return &gtfs.FeedEntity{
		Id: proto.String(id),
		Vehicle: &gtfs.VehiclePosition{
			Vehicle:  &gtfs.VehicleDescriptor{Id: proto.String(id)},
			Position: &gtfs.Position{Latitude: proto.Float32(lat), Longitude: proto.Float32(lng)},
		},
	}
}

// Feed wraps entities in a FeedMessage. A zero ts leaves the header
// timestamp unset.
func Feed(ts uint64, entities ...*gtfs.FeedEntity) *gtfs.FeedMessage {
	h := &gtfs.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")}
	if ts != 0 {
		h.Timestamp = proto.Uint64(ts)
	}
	return &gtfs.FeedMessage{Header: h, Entity: entities}
}

// Marshal encodes m, allowing missing required fields.
func Marshal(t testing.TB, m *gtfs.FeedMessage) []byte {
	t.Helper()
	b, err := proto.MarshalOptions{AllowPartial: true}.Marshal(m)
	if err != nil {
		t.Fatalf("marshal feed: %v", err)
	}
	return b
}

// Capture is shorthand for Marshal(t, Feed(ts, Vehicle(...))) with one
// vehicle per id.
func Capture(t testing.TB, ts uint64, ids ...string) []byte {
	t.Helper()
	entities := make([]*gtfs.FeedEntity, 0, len(ids))
	for i, id := range ids {
		entities = append(entities, Vehicle(id, 52.2+float32(i)*0.01, 0.12))
	}
	return Marshal(t, Feed(ts, entities...))
}

// AppendRawEntity appends an entity field holding raw bytes verbatim, which
// lets tests inject an entity that does not parse.
func AppendRawEntity(b, raw []byte) []byte {
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	return protowire.AppendBytes(b, raw)
}

// Truncated is an entity payload whose id field claims more bytes than it
// carries.
var Truncated = []byte{0x0a, 0x05, 'x'}
