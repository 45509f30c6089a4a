package apclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMalformed         = errors.New("apclient: malformed packet")
	ErrClosed            = errors.New("apclient: connection closed")
	ErrConnectionRefused = errors.New("apclient: connection refused")
)

// Статусы клиента (ClientStatus).
const (
	ClientUnknown   = 0
	ClientConnected = 5
	ClientReady     = 10
	ClientPlaying   = 20
	ClientGoal      = 30
)

// StatusKey — ключ data storage со статусом слота, доступный только на чтение.
func StatusKey(team, slot int) string {
	return fmt.Sprintf("_read_client_status_%d_%d", team, slot)
}

// ========================= общие типы =========================

type NetworkVersion struct {
	Major int    `json:"major"`
	Minor int    `json:"minor"`
	Build int    `json:"build"`
	Class string `json:"class"`
}

func (v NetworkVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build)
}

// DefaultVersion — версия протокола, которую объявляет бот.
var DefaultVersion = NetworkVersion{Major: 0, Minor: 5, Build: 1, Class: "Version"}

type NetworkPlayer struct {
	Team  int    `json:"team"`
	Slot  int    `json:"slot"`
	Alias string `json:"alias"`
	Name  string `json:"name"`
}

type NetworkItem struct {
	Item     int64 `json:"item"`
	Location int64 `json:"location"`
	Player   int   `json:"player"`
	Flags    int   `json:"flags"`
}

type NetworkSlot struct {
	Name string `json:"name"`
	Game string `json:"game"`
	Type int    `json:"type"`
}

type GameData struct {
	ItemNameToID     map[string]int64 `json:"item_name_to_id"`
	LocationNameToID map[string]int64 `json:"location_name_to_id"`
	Checksum         string           `json:"checksum"`
}

type JSONMessagePart struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text"`
}

// ========================= сервер → клиент =========================

// ServerPacket — любой пакет от сервера.
type ServerPacket interface {
	Command() string
}

type RoomInfo struct {
	Version              NetworkVersion    `json:"version"`
	GeneratorVersion     NetworkVersion    `json:"generator_version"`
	Tags                 []string          `json:"tags"`
	Password             bool              `json:"password"`
	HintCost             int               `json:"hint_cost"`
	Games                []string          `json:"games"`
	DatapackageChecksums map[string]string `json:"datapackage_checksums"`
	SeedName             string            `json:"seed_name"`
	Time                 float64           `json:"time"`
}

type Connected struct {
	Team             int                    `json:"team"`
	Slot             int                    `json:"slot"`
	Players          []NetworkPlayer        `json:"players"`
	MissingLocations []int64                `json:"missing_locations"`
	CheckedLocations []int64                `json:"checked_locations"`
	SlotData         json.RawMessage        `json:"slot_data"`
	SlotInfo         map[string]NetworkSlot `json:"slot_info"`
	HintPoints       int                    `json:"hint_points"`
}

type ConnectionRefused struct {
	Errors []string `json:"errors"`
}

type DataPackage struct {
	Data struct {
		Games map[string]GameData `json:"games"`
	} `json:"data"`
}

type ReceivedItems struct {
	Index int           `json:"index"`
	Items []NetworkItem `json:"items"`
}

type LocationInfo struct {
	Locations []NetworkItem `json:"locations"`
}

type RoomUpdate struct {
	CheckedLocations []int64        `json:"checked_locations"`
	Players          []NetworkPlayer `json:"players"`
	HintPoints       *int           `json:"hint_points"`
}

type PrintJSON struct {
	Type    string            `json:"type"`
	Data    []JSONMessagePart `json:"data"`
	Slot    int               `json:"slot"`
	Team    int               `json:"team"`
	Message string            `json:"message"`
}

// Text склеивает части сообщения.
func (p *PrintJSON) Text() string {
	var b strings.Builder
	for _, part := range p.Data {
		b.WriteString(part.Text)
	}
	return b.String()
}

type Bounced struct {
	Games []string        `json:"games"`
	Slots []int           `json:"slots"`
	Tags  []string        `json:"tags"`
	Data  json.RawMessage `json:"data"`
}

type Retrieved struct {
	Keys map[string]json.RawMessage `json:"keys"`
}

type SetReply struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type InvalidPacket struct {
	Type        string `json:"type"`
	OriginalCmd string `json:"original_cmd"`
	Text        string `json:"text"`
}

// Unknown — пакет с командой, которую клиент не знает.
type Unknown struct {
	Cmd string
	Raw json.RawMessage
}

func (*RoomInfo) Command() string          { return "RoomInfo" }
func (*Connected) Command() string         { return "Connected" }
func (*ConnectionRefused) Command() string { return "ConnectionRefused" }
func (*DataPackage) Command() string       { return "DataPackage" }
func (*ReceivedItems) Command() string     { return "ReceivedItems" }
func (*LocationInfo) Command() string      { return "LocationInfo" }
func (*RoomUpdate) Command() string        { return "RoomUpdate" }
func (*PrintJSON) Command() string         { return "PrintJSON" }
func (*Bounced) Command() string           { return "Bounced" }
func (*Retrieved) Command() string         { return "Retrieved" }
func (*SetReply) Command() string          { return "SetReply" }
func (*InvalidPacket) Command() string     { return "InvalidPacket" }
func (u *Unknown) Command() string         { return u.Cmd }

// ========================= клиент → сервер =========================

// ClientPacket — пакет, который можно отправить через Sender.
type ClientPacket interface {
	Command() string
}

type Connect struct {
	Password      string         `json:"password"`
	Game          string         `json:"game"`
	Name          string         `json:"name"`
	UUID          string         `json:"uuid"`
	Version       NetworkVersion `json:"version"`
	ItemsHandling int            `json:"items_handling"`
	Tags          []string       `json:"tags"`
	SlotData      bool           `json:"slot_data"`
}

type Sync struct{}

type LocationChecks struct {
	Locations []int64 `json:"locations"`
}

type LocationScouts struct {
	Locations    []int64 `json:"locations"`
	CreateAsHint int     `json:"create_as_hint"`
}

type StatusUpdate struct {
	Status int `json:"status"`
}

type Say struct {
	Text string `json:"text"`
}

type GetDataPackage struct {
	Games []string `json:"games,omitempty"`
}

type Get struct {
	Keys []string `json:"keys"`
}

type Bounce struct {
	Games []string        `json:"games,omitempty"`
	Slots []int           `json:"slots,omitempty"`
	Tags  []string        `json:"tags,omitempty"`
	Data  json.RawMessage `json:"data"`
}

func (Connect) Command() string        { return "Connect" }
func (Sync) Command() string           { return "Sync" }
func (LocationChecks) Command() string { return "LocationChecks" }
func (LocationScouts) Command() string { return "LocationScouts" }
func (StatusUpdate) Command() string   { return "StatusUpdate" }
func (Say) Command() string            { return "Say" }
func (GetDataPackage) Command() string { return "GetDataPackage" }
func (Get) Command() string            { return "Get" }
func (Bounce) Command() string         { return "Bounce" }

// MarshalJSON у клиентских пакетов добавляет поле cmd.
func (p Connect) MarshalJSON() ([]byte, error) {
	type plain Connect
	return withCmd(p.Command(), plain(p))
}

func (p Sync) MarshalJSON() ([]byte, error) {
	return withCmd(p.Command(), struct{}{})
}

func (p LocationChecks) MarshalJSON() ([]byte, error) {
	type plain LocationChecks
	if p.Locations == nil {
		p.Locations = []int64{}
	}
	return withCmd(p.Command(), plain(p))
}

func (p LocationScouts) MarshalJSON() ([]byte, error) {
	type plain LocationScouts
	return withCmd(p.Command(), plain(p))
}

func (p StatusUpdate) MarshalJSON() ([]byte, error) {
	type plain StatusUpdate
	return withCmd(p.Command(), plain(p))
}

func (p Say) MarshalJSON() ([]byte, error) {
	type plain Say
	return withCmd(p.Command(), plain(p))
}

func (p GetDataPackage) MarshalJSON() ([]byte, error) {
	type plain GetDataPackage
	return withCmd(p.Command(), plain(p))
}

func (p Get) MarshalJSON() ([]byte, error) {
	type plain Get
	return withCmd(p.Command(), plain(p))
}

func (p Bounce) MarshalJSON() ([]byte, error) {
	type plain Bounce
	if p.Data == nil {
		p.Data = json.RawMessage("{}")
	}
	return withCmd(p.Command(), plain(p))
}

func withCmd(cmd string, v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	fields["cmd"] = json.RawMessage(strconv.Quote(cmd))
	return json.Marshal(fields)
}

// ========================= декодирование =========================

// queued — разобранный пакет либо ошибка его разбора, в порядке прихода.
type queued struct {
	pkt ServerPacket
	err error
}

// decodeFrame разбирает кадр — JSON-массив пакетов. Битый пакет не ломает
// соседей: он попадает в очередь как ошибка ErrMalformed.
func decodeFrame(data []byte) []queued {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return []queued{{err: fmt.Errorf("%w: frame: %v", ErrMalformed, err)}}
	}
	out := make([]queued, 0, len(raws))
	for _, raw := range raws {
		pkt, err := decodePacket(raw)
		out = append(out, queued{pkt: pkt, err: err})
	}
	return out
}

func decodePacket(raw json.RawMessage) (ServerPacket, error) {
	var head struct {
		Cmd string `json:"cmd"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var pkt ServerPacket
	switch head.Cmd {
	case "RoomInfo":
		pkt = &RoomInfo{}
	case "Connected":
		pkt = &Connected{}
	case "ConnectionRefused":
		pkt = &ConnectionRefused{}
	case "DataPackage":
		pkt = &DataPackage{}
	case "ReceivedItems":
		pkt = &ReceivedItems{}
	case "LocationInfo":
		pkt = &LocationInfo{}
	case "RoomUpdate":
		pkt = &RoomUpdate{}
	case "PrintJSON":
		pkt = &PrintJSON{}
	case "Bounced":
		pkt = &Bounced{}
	case "Retrieved":
		pkt = &Retrieved{}
	case "SetReply":
		pkt = &SetReply{}
	case "InvalidPacket":
		pkt = &InvalidPacket{}
	case "":
		return nil, fmt.Errorf("%w: packet without cmd", ErrMalformed)
	default:
		return &Unknown{Cmd: head.Cmd, Raw: raw}, nil
	}
	if err := json.Unmarshal(raw, pkt); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, head.Cmd, err)
	}
	return pkt, nil
}

// encodeFrame собирает кадр из клиентских пакетов.
func encodeFrame(pkts []ClientPacket) ([]byte, error) {
	return json.Marshal(pkts)
}
