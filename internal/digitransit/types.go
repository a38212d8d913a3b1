package digitransit

// Raw payload shapes as returned by the Digitransit GraphQL API. Optional
// scalar fields are pointers so that "absent" and "zero" stay distinct.

type rawPosition struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type rawRouteRef struct {
	ID        string `json:"id"`
	ShortName string `json:"shortName"`
	LongName  string `json:"longName"`
	Mode      string `json:"mode"`
}

type rawTrip struct {
	ID    string       `json:"id"`
	Route *rawRouteRef `json:"route"`
}

type rawVehicle struct {
	ID            string       `json:"id"`
	Trip          *rawTrip     `json:"trip"`
	Position      *rawPosition `json:"position"`
	Speed         *float64     `json:"speed"`
	Heading       *int         `json:"heading"`
	VehicleNumber string       `json:"vehicleNumber"`
	OperatorID    string       `json:"operatorId"`
}

type vehiclesPayload struct {
	Vehicles []rawVehicle `json:"vehicles"`
}

type rawStopRef struct {
	ID string `json:"id"`
}

type rawStop struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Code         string       `json:"code"`
	Lat          *float64     `json:"lat"`
	Lon          *float64     `json:"lon"`
	Routes       []rawStopRef `json:"routes"`
	PlatformCode string       `json:"platformCode"`
	Desc         string       `json:"desc"`
	ZoneID       string       `json:"zoneId"`
}

type stopsPayload struct {
	Stops []rawStop `json:"stops"`
}

type rawPattern struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Stops []rawStopRef `json:"stops"`
}

type rawRoute struct {
	ID         string       `json:"id"`
	ShortName  string       `json:"shortName"`
	LongName   string       `json:"longName"`
	Mode       string       `json:"mode"`
	OperatorID string       `json:"operatorId"`
	Patterns   []rawPattern `json:"patterns"`
	Color      string       `json:"color"`
	TextColor  string       `json:"textColor"`
}

type routesPayload struct {
	Routes []rawRoute `json:"routes"`
}
