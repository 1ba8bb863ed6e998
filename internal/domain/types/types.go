// Package types contains the wire payload published to status subscribers.
package types

// Status is one status event as subscribers receive it. Key spelling
// (FinishTime, SLA) is fixed by existing consumers.
type Status struct {
	Type        string         `json:"type"`
	Timestamp   int64          `json:"timestamp"`
	Active      bool           `json:"active"`
	SSID        int64          `json:"ssid"`
	FinishTime  int64          `json:"FinishTime"`
	Attacker    int64          `json:"attacker"`
	Victim      int64          `json:"victim"`
	Service     int64          `json:"service"`
	TeamList    []TeamEntry    `json:"teamlist"`
	ServiceList []ServiceEntry `json:"servicelist"`
}

// TeamEntry is one team row of the payload.
type TeamEntry struct {
	TID      int64   `json:"tid"`
	TName    string  `json:"tname"`
	AtkCount int64   `json:"atkcount"`
	VicCount int64   `json:"viccount"`
	Service  int64   `json:"service"`
	SLA      float64 `json:"SLA"`
	Score    int64   `json:"score"`
}

// ServiceEntry is one service row of the payload.
type ServiceEntry struct {
	SID   int64  `json:"sid"`
	SName string `json:"sname"`
}
