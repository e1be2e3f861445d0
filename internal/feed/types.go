package feed

// MsgTypePosition tags every position message on the bus.
const MsgTypePosition = "bus_position"

// Source values distinguish the live ingestion path from replayed archives.
const (
	SourceLive   = "live"
	SourceReplay = "replay"
)

// VehiclePosition is one decoded sighting of a vehicle. Optional fields are
// nil when absent from the source feed.
type VehiclePosition struct {
	VehicleID           *string  `json:"vehicle_id,omitempty"`
	Label               *string  `json:"label,omitempty"`
	RouteID             *string  `json:"route_id,omitempty"`
	TripID              *string  `json:"trip_id,omitempty"`
	Latitude            float64  `json:"latitude"`
	Longitude           float64  `json:"longitude"`
	Bearing             *float64 `json:"bearing,omitempty"`
	CurrentStopSequence *uint32  `json:"current_stop_sequence,omitempty"`
	StopID              *string  `json:"stop_id,omitempty"`
	Timestamp           *int64   `json:"timestamp,omitempty"`
}

// Message is the bus payload published for each live or replayed capture.
type Message struct {
	ModuleName string            `json:"module_name"`
	ModuleID   string            `json:"module_id"`
	MsgType    string            `json:"msg_type"`
	Source     string            `json:"source"`
	Filename   string            `json:"filename"`
	Filepath   string            `json:"filepath"`
	Timestamp  *int64            `json:"timestamp,omitempty"`
	Entities   []VehiclePosition `json:"entities"`
}

// NewMessage builds a position message from a decode result.
func NewMessage(moduleName, moduleID, source, filename, filepath string, r Result) Message {
	entities := r.Entities
	if entities == nil {
		entities = []VehiclePosition{}
	}
	return Message{
		ModuleName: moduleName,
		ModuleID:   moduleID,
		MsgType:    MsgTypePosition,
		Source:     source,
		Filename:   filename,
		Filepath:   filepath,
		Timestamp:  r.Timestamp,
		Entities:   entities,
	}
}
