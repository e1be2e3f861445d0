// Package feed decodes GTFS-Realtime vehicle position captures into the
// normalised records published on the bus.
package feed

import (
	"errors"
	"fmt"
	"log"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

var (
	fieldHeader = fieldNumber("header")
	fieldEntity = fieldNumber("entity")

	// required fields are checked by hand so one entity cannot fail the feed
	unmarshal = proto.UnmarshalOptions{AllowPartial: true, DiscardUnknown: true}

	errMissingHeader = errors.New("missing feed header")
)

func fieldNumber(name string) protowire.Number {
	fd := (&gtfs.FeedMessage{}).ProtoReflect().Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		panic("feed: FeedMessage has no field " + name)
	}
	return fd.Number()
}

// DecodeError reports a capture whose envelope could not be parsed. No
// entities are returned alongside it.
type DecodeError struct {
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode feed at byte %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Result is the outcome of a successful decode.
type Result struct {
	// Timestamp is the feed header send time, nil when the header has none.
	Timestamp *int64
	Entities  []VehiclePosition
	// Dropped counts entities discarded because their bytes were malformed.
	Dropped int
}

// Decode parses raw as a GTFS-Realtime FeedMessage. Envelope framing and the
// header must be well formed; each entity is decoded on its own and a
// malformed one is logged and dropped. Entities without a vehicle position,
// or whose position lacks latitude or longitude, are skipped.
func Decode(raw []byte) (Result, error) {
	var res Result
	haveHeader := false
	b := raw
	idx := 0
	for len(b) > 0 {
		off := len(raw) - len(b)
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Result{}, &DecodeError{Offset: off, Err: protowire.ParseError(n)}
		}
		b = b[n:]

		if typ != protowire.BytesType || (num != fieldHeader && num != fieldEntity) {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Result{}, &DecodeError{Offset: off, Err: protowire.ParseError(n)}
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return Result{}, &DecodeError{Offset: off, Err: protowire.ParseError(n)}
		}
		b = b[n:]

		if num == fieldHeader {
			var h gtfs.FeedHeader
			if err := unmarshal.Unmarshal(v, &h); err != nil {
				return Result{}, &DecodeError{Offset: off, Err: fmt.Errorf("header: %w", err)}
			}
			haveHeader = true
			res.Timestamp = nil
			if h.Timestamp != nil {
				ts := int64(h.GetTimestamp())
				res.Timestamp = &ts
			}
			continue
		}

		var e gtfs.FeedEntity
		if err := unmarshal.Unmarshal(v, &e); err != nil {
			log.Printf("feed: dropping malformed entity %d at byte %d: %v", idx, off, err)
			res.Dropped++
			idx++
			continue
		}
		idx++
		if pos, ok := vehiclePosition(&e); ok {
			res.Entities = append(res.Entities, pos)
		}
	}
	if !haveHeader {
		return Result{}, &DecodeError{Offset: len(raw), Err: errMissingHeader}
	}
	return res, nil
}

func vehiclePosition(e *gtfs.FeedEntity) (VehiclePosition, bool) {
	v := e.GetVehicle()
	if v == nil || v.Position == nil {
		return VehiclePosition{}, false
	}
	p := v.Position
	if p.Latitude == nil || p.Longitude == nil {
		return VehiclePosition{}, false
	}

	out := VehiclePosition{
		Latitude:  float64(p.GetLatitude()),
		Longitude: float64(p.GetLongitude()),
	}
	if p.Bearing != nil {
		b := float64(p.GetBearing())
		out.Bearing = &b
	}
	if vd := v.Vehicle; vd != nil {
		out.VehicleID = vd.Id
		out.Label = vd.Label
	}
	if td := v.Trip; td != nil {
		out.TripID = td.TripId
		out.RouteID = td.RouteId
	}
	if v.Timestamp != nil {
		ts := int64(v.GetTimestamp())
		out.Timestamp = &ts
	}
	out.CurrentStopSequence = v.CurrentStopSequence
	out.StopID = v.StopId
	return out, true
}
