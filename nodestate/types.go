package nodestate

import "time"

// NodeMeta is the cached view of one mesh node. It carries what the web
// layer reads on every request so those reads skip SQL.
type NodeMeta struct {
	ID             string     `json:"id"`
	ShortName      string     `json:"shortname,omitempty"`
	LongName       string     `json:"longname,omitempty"`
	Role           string     `json:"role,omitempty"`
	LastHeard      *time.Time `json:"last_heard,omitempty"`
	HopsAway       *int       `json:"hops_away,omitempty"`
	SNR            *float64   `json:"snr,omitempty"`
	RSSI           *int       `json:"rssi,omitempty"`
	BatteryLevel   *int       `json:"battery_level,omitempty"`
	Latitude       *float64   `json:"latitude,omitempty"`
	Longitude      *float64   `json:"longitude,omitempty"`
	Altitude       *int       `json:"altitude,omitempty"`
	NodeOfInterest bool       `json:"node_of_interest"`
	Aircraft       bool       `json:"aircraft"`
}
