package normalize

import (
	"strings"

	"github.com/telesight/cdr-intel/internal/resolver"
)

// Direction values carried by a normalized point.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Event type values after normalization.
const (
	TypeAudio = "audio"
	TypeSMS   = "sms"
)

// CdrPoint is the canonical per-event record produced from a raw source row.
// Latitude and longitude are signed decimal-degree strings; optional
// metadata fields are populated sparsely (absent, never empty placeholders).
type CdrPoint struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
	Nom       string `json:"nom"`
	Type      string `json:"type"`
	Direction string `json:"direction"`
	Caller    string `json:"caller"`
	Callee    string `json:"callee"`
	Number    string `json:"number"`
	CallDate  string `json:"callDate"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Duration  string `json:"duration"`
	Tracked   string `json:"tracked"`

	ImsiCaller   string `json:"imsiCaller,omitempty"`
	ImeiCaller   string `json:"imeiCaller,omitempty"`
	ImeiCalled   string `json:"imeiCalled,omitempty"`
	Cgi          string `json:"cgi,omitempty"`
	Azimut       string `json:"azimut,omitempty"`
	SeqNumber    string `json:"seqNumber,omitempty"`
	CallStatus   string `json:"callStatus,omitempty"`
	ReleaseCause string `json:"releaseCause,omitempty"`
	Billing      string `json:"billing,omitempty"`
	NetworkRoute string `json:"networkRoute,omitempty"`
	DeviceID     string `json:"deviceId,omitempty"`
	SourceFile   string `json:"sourceFile,omitempty"`
	InsertedAt   string `json:"insertedAt,omitempty"`
}

// DurationSeconds derives the event duration in whole seconds, preferring
// the explicit duration field over the start/end timestamp difference.
func (p *CdrPoint) DurationSeconds() int {
	return CallDurationSeconds(p.Duration, p.CallDate, p.StartTime, "", p.EndTime)
}

// Candidate key spellings per canonical field, ordered by priority. The
// folded lookup in the resolver absorbs case, accent and punctuation
// variants of each spelling, so only structurally distinct names appear.
var (
	latitudeKeys  = []string{"latitude", "lat", "lat_bts", "nord_bts", "latitude_bts", "bts_lat", "coord_y", "y"}
	longitudeKeys = []string{"longitude", "long", "lng", "lon", "long_bts", "ouest_bts", "longitude_bts", "bts_long", "coord_x", "x"}
	nomKeys       = []string{"nom", "nom_bts", "site", "site_name", "nom_site", "cell_name", "localisation", "adresse"}
	typeKeys      = []string{"type", "type_appel", "call_type", "type_cdr", "categorie", "service"}
	directionKeys = []string{"sens", "direction", "sens_appel", "call_direction"}
	callerKeys    = []string{"caller", "appelant", "numero_appelant", "calling_number", "a_number", "msisdn_appelant", "origine"}
	calleeKeys    = []string{"callee", "appele", "numero_appele", "called_number", "b_number", "msisdn_appele", "destination"}
	numberKeys    = []string{"number", "numero", "msisdn", "correspondant"}
	callDateKeys  = []string{"callDate", "date", "date_appel", "call_date", "jour"}
	startTimeKeys = []string{"startTime", "heure_debut", "start_time", "heure", "time", "debut"}
	endTimeKeys   = []string{"endTime", "heure_fin", "end_time", "fin"}
	durationKeys  = []string{"duration", "duree", "duree_appel", "call_duration", "durée"}

	imsiCallerKeys   = []string{"imsiCaller", "imsi", "imsi_appelant", "imsi_caller"}
	imeiCallerKeys   = []string{"imeiCaller", "imei", "imei_appelant", "imei_caller", "imei_a"}
	imeiCalledKeys   = []string{"imeiCalled", "imei_appele", "imei_called", "imei_b"}
	cgiKeys          = []string{"cgi", "cell_id", "cellid", "ci", "first_cell_id"}
	azimutKeys       = []string{"azimut", "azimuth", "orientation"}
	seqNumberKeys    = []string{"seqNumber", "seq", "sequence", "num_seq", "cdr_no"}
	callStatusKeys   = []string{"callStatus", "statut", "status", "etat_appel"}
	releaseCauseKeys = []string{"releaseCause", "cause", "cause_liberation", "release_cause"}
	billingKeys      = []string{"billing", "facturation", "billing_type", "taxation"}
	networkRouteKeys = []string{"networkRoute", "route", "faisceau", "trunk", "network_route"}
	deviceIDKeys     = []string{"deviceId", "device_id", "terminal"}
	sourceFileKeys   = []string{"sourceFile", "source_file", "fichier", "fichier_source"}
	insertedAtKeys   = []string{"insertedAt", "inserted_at", "date_insertion", "created_at"}
)

// NormalizePoint builds a canonical CdrPoint from an arbitrary raw source
// record. spatial is false when latitude or longitude cannot be normalized:
// such a point is excluded from every map-relevant aggregate but still
// carries its participants, so it can count toward contact aggregation.
// Latitude and longitude are set together or not at all. trackedID is the
// identifier that drove the query and is always set on the result.
func NormalizePoint(raw resolver.Record, trackedID string) (point *CdrPoint, spatial bool) {
	latitude, okLat := Coordinate(resolver.Resolve(raw, latitudeKeys, 0), AxisLatitude)
	longitude, okLong := Coordinate(resolver.Resolve(raw, longitudeKeys, 0), AxisLongitude)
	spatial = okLat && okLong
	if !spatial {
		latitude, longitude = "", ""
	}

	point = &CdrPoint{
		Latitude:  latitude,
		Longitude: longitude,
		Nom:       resolver.ResolveString(raw, nomKeys, 0),
		Type:      normalizeType(resolver.ResolveString(raw, typeKeys, 0)),
		Caller:    resolver.ResolveString(raw, callerKeys, 0),
		Callee:    resolver.ResolveString(raw, calleeKeys, 0),
		Number:    resolver.ResolveString(raw, numberKeys, 0),
		CallDate:  resolver.ResolveString(raw, callDateKeys, 0),
		StartTime: resolver.ResolveString(raw, startTimeKeys, 0),
		EndTime:   resolver.ResolveString(raw, endTimeKeys, 0),
		Duration:  resolver.ResolveString(raw, durationKeys, 0),
		Tracked:   trackedID,
	}

	point.Direction = normalizeDirection(resolver.ResolveString(raw, directionKeys, 0))
	if point.Direction == "" && point.Type == TypeAudio {
		point.Direction = inferAudioDirection(trackedID, point.Caller, point.Callee)
	}

	if point.Number == "" {
		point.Number = bestCorrespondent(trackedID, point.Caller, point.Callee)
	}

	setOptional(&point.ImsiCaller, raw, imsiCallerKeys)
	setOptional(&point.ImeiCaller, raw, imeiCallerKeys)
	setOptional(&point.ImeiCalled, raw, imeiCalledKeys)
	setOptional(&point.Cgi, raw, cgiKeys)
	setOptional(&point.Azimut, raw, azimutKeys)
	setOptional(&point.SeqNumber, raw, seqNumberKeys)
	setOptional(&point.CallStatus, raw, callStatusKeys)
	setOptional(&point.ReleaseCause, raw, releaseCauseKeys)
	setOptional(&point.Billing, raw, billingKeys)
	setOptional(&point.NetworkRoute, raw, networkRouteKeys)
	setOptional(&point.DeviceID, raw, deviceIDKeys)
	setOptional(&point.SourceFile, raw, sourceFileKeys)
	setOptional(&point.InsertedAt, raw, insertedAtKeys)

	return point, spatial
}

func setOptional(dst *string, raw resolver.Record, keys []string) {
	if value := resolver.ResolveString(raw, keys, 0); value != "" {
		*dst = value
	}
}

// normalizeType folds the provider call-type vocabulary onto audio/sms.
// Unrecognized provider-specific types pass through lower-cased.
func normalizeType(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	switch lowered {
	case "voix", "voice", "appel", "call", "audio":
		return TypeAudio
	case "sms", "texto", "text", "message":
		return TypeSMS
	default:
		return lowered
	}
}

// normalizeDirection maps raw provider direction codes onto the canonical
// incoming/outgoing pair. Unknown values yield "".
func normalizeDirection(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sortant", "sortante", "outgoing", "out", "emis", "mo":
		return DirectionOutgoing
	case "entrant", "entrante", "incoming", "in", "recu", "reçu", "mt":
		return DirectionIncoming
	default:
		return ""
	}
}

// inferAudioDirection infers the direction of a voice event from the
// position of the tracked identifier: tracked == caller means outgoing,
// tracked == callee means incoming, and outgoing is the default when
// neither side matches.
func inferAudioDirection(tracked, caller, callee string) string {
	switch {
	case resolver.SameSubscriber(tracked, caller):
		return DirectionOutgoing
	case resolver.SameSubscriber(tracked, callee):
		return DirectionIncoming
	default:
		return DirectionOutgoing
	}
}

// bestCorrespondent picks the counterpart of the tracked identifier from
// the caller/callee pair.
func bestCorrespondent(tracked, caller, callee string) string {
	switch {
	case resolver.SameSubscriber(tracked, caller):
		return callee
	case resolver.SameSubscriber(tracked, callee):
		return caller
	case caller != "":
		return caller
	default:
		return callee
	}
}
