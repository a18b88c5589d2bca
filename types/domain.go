package types

// Line is a transit route as published in the operator's line selector.
type Line struct {
	Code       string `json:"code" example:"05"`
	Name       string `json:"name" example:"Benta Berri"`
	SourceURL  string `json:"url" example:"https://dbus.eus/05-benta-berri/"`
	InternalID string `json:"internal_id" example:"30"`
}

// Stop belongs to exactly one Line. InternalID is the selector value the
// arrival query expects.
type Stop struct {
	Code       string `json:"code" example:"101"`
	Name       string `json:"name" example:"Amara"`
	InternalID string `json:"internal_id" example:"101"`
}

type ArrivalEstimate struct {
	Line    string `json:"line" example:"05"`
	Stop    string `json:"stop" example:"101"`
	Minutes int    `json:"arrival_time" example:"7"`
	Unit    string `json:"unit" example:"minutes"`
}

func NewArrivalEstimate(line, stop string, minutes int) ArrivalEstimate {
	return ArrivalEstimate{Line: line, Stop: stop, Minutes: minutes, Unit: "minutes"}
}
