// Package aptest — минимальный сервер Archipelago для тестов: отвечает на
// рукопожатие, эхо-подтверждает LocationChecks через RoomUpdate, хранит
// статусы в data storage и записывает всё, что прислал клиент.
package aptest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/EgorLis/apbot/internal/apclient"
)

type Options struct {
	Seed      string
	Game      string
	Locations map[string]int64
	Items     map[string]int64
	Players   []apclient.NetworkPlayer

	// Слот и команда по умолчанию, если имени нет в Players.
	Slot int
	Team int

	Refuse        []string // непустой — ответить ConnectionRefused
	OmitGame      bool     // не класть игру в data package
	Checked       []int64  // локации, уже отмеченные на сервере
	ReceivedItems []apclient.NetworkItem
	Storage       map[string]any
}

// Packet — пакет, присланный клиентом.
type Packet struct {
	Cmd string
	Raw json.RawMessage
}

type Server struct {
	*httptest.Server
	opts Options

	mu       sync.Mutex
	packets  []Packet
	checked  map[int64]bool
	storage  map[string]any
	conns    []*websocket.Conn
	wmu      map[*websocket.Conn]*sync.Mutex
	team     int
	slot     int
	notify   chan struct{}
	upgrader websocket.Upgrader
}

func New(opts Options) *Server {
	if opts.Game == "" {
		opts.Game = "APBot"
	}
	if opts.Seed == "" {
		opts.Seed = "SEED1"
	}
	s := &Server{
		opts:    opts,
		checked: map[int64]bool{},
		storage: map[string]any{},
		wmu:     map[*websocket.Conn]*sync.Mutex{},
		notify:  make(chan struct{}),
	}
	for _, id := range opts.Checked {
		s.checked[id] = true
	}
	for k, v := range opts.Storage {
		s.storage[k] = v
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveWS))
	return s
}

// Addr — адрес для apclient.Dial.
func (s *Server) Addr() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.wmu[conn] = &sync.Mutex{}
	s.mu.Unlock()
	defer conn.Close()

	s.write(conn, packet("RoomInfo", map[string]any{
		"version":               apclient.DefaultVersion,
		"generator_version":     apclient.DefaultVersion,
		"tags":                  []string{},
		"password":              false,
		"hint_cost":             10,
		"games":                 []string{s.opts.Game},
		"datapackage_checksums": map[string]string{},
		"seed_name":             s.opts.Seed,
		"time":                  float64(time.Now().Unix()),
	}))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			continue
		}
		for _, raw := range raws {
			s.handle(conn, raw)
		}
	}
}

func (s *Server) handle(conn *websocket.Conn, raw json.RawMessage) {
	var head struct {
		Cmd string `json:"cmd"`
	}
	_ = json.Unmarshal(raw, &head)
	s.record(Packet{Cmd: head.Cmd, Raw: raw})

	switch head.Cmd {
	case "GetDataPackage":
		games := map[string]any{}
		if !s.opts.OmitGame {
			games[s.opts.Game] = map[string]any{
				"location_name_to_id": s.opts.Locations,
				"item_name_to_id":     s.opts.Items,
				"checksum":            "test",
			}
		}
		s.write(conn, packet("DataPackage", map[string]any{"data": map[string]any{"games": games}}))

	case "Connect":
		var p apclient.Connect
		_ = json.Unmarshal(raw, &p)
		if len(s.opts.Refuse) > 0 {
			s.write(conn, packet("ConnectionRefused", map[string]any{"errors": s.opts.Refuse}))
			return
		}
		s.mu.Lock()
		s.team, s.slot = s.opts.Team, s.opts.Slot
		for _, pl := range s.opts.Players {
			if pl.Name == p.Name {
				s.team, s.slot = pl.Team, pl.Slot
			}
		}
		checked, missing := s.locationsLocked()
		team, slot := s.team, s.slot
		s.mu.Unlock()
		s.write(conn, packet("Connected", map[string]any{
			"team":              team,
			"slot":              slot,
			"players":           s.opts.Players,
			"missing_locations": missing,
			"checked_locations": checked,
			"slot_data":         map[string]any{},
			"slot_info":         map[string]any{},
			"hint_points":       0,
		}))

	case "LocationChecks":
		var p apclient.LocationChecks
		_ = json.Unmarshal(raw, &p)
		var fresh []int64
		s.mu.Lock()
		for _, id := range p.Locations {
			if !s.checked[id] {
				s.checked[id] = true
				fresh = append(fresh, id)
			}
		}
		s.mu.Unlock()
		if len(fresh) > 0 {
			s.write(conn, packet("RoomUpdate", map[string]any{"checked_locations": fresh}))
		}

	case "StatusUpdate":
		var p apclient.StatusUpdate
		_ = json.Unmarshal(raw, &p)
		s.mu.Lock()
		s.storage[apclient.StatusKey(s.team, s.slot)] = p.Status
		s.mu.Unlock()

	case "Get":
		var p apclient.Get
		_ = json.Unmarshal(raw, &p)
		keys := map[string]any{}
		s.mu.Lock()
		for _, k := range p.Keys {
			keys[k] = s.storage[k]
		}
		s.mu.Unlock()
		s.write(conn, packet("Retrieved", map[string]any{"keys": keys}))

	case "Sync":
		items := s.opts.ReceivedItems
		if items == nil {
			items = []apclient.NetworkItem{}
		}
		s.write(conn, packet("ReceivedItems", map[string]any{"index": 0, "items": items}))

	case "Say":
		var p apclient.Say
		_ = json.Unmarshal(raw, &p)
		s.mu.Lock()
		team, slot := s.team, s.slot
		s.mu.Unlock()
		s.write(conn, packet("PrintJSON", map[string]any{
			"type":    "Chat",
			"team":    team,
			"slot":    slot,
			"message": p.Text,
			"data":    []map[string]any{{"text": p.Text}},
		}))
	}
}

func (s *Server) locationsLocked() (checked, missing []int64) {
	checked, missing = []int64{}, []int64{}
	for _, id := range s.opts.Locations {
		if s.checked[id] {
			checked = append(checked, id)
		} else {
			missing = append(missing, id)
		}
	}
	return checked, missing
}

func (s *Server) record(p Packet) {
	s.mu.Lock()
	s.packets = append(s.packets, p)
	close(s.notify)
	s.notify = make(chan struct{})
	s.mu.Unlock()
}

func (s *Server) write(conn *websocket.Conn, pkts ...map[string]any) {
	data, err := json.Marshal(pkts)
	if err != nil {
		panic(fmt.Sprintf("aptest: marshal: %v", err))
	}
	s.WriteRaw(conn, data)
}

// WriteRaw пишет произвольный кадр (например, битый JSON).
func (s *Server) WriteRaw(conn *websocket.Conn, data []byte) {
	s.mu.Lock()
	mu := s.wmu[conn]
	s.mu.Unlock()
	if mu == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

// Push отправляет пакет всем подключённым клиентам.
func (s *Server) Push(cmd string, fields map[string]any) {
	for _, c := range s.Conns() {
		s.write(c, packet(cmd, fields))
	}
}

// PushRaw отправляет сырой кадр всем клиентам.
func (s *Server) PushRaw(data []byte) {
	for _, c := range s.Conns() {
		s.WriteRaw(c, data)
	}
}

func (s *Server) Conns() []*websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*websocket.Conn(nil), s.conns...)
}

// DropClients рвёт все соединения со стороны сервера.
func (s *Server) DropClients() {
	for _, c := range s.Conns() {
		_ = c.Close()
	}
}

// Packets возвращает присланные клиентом пакеты с командой cmd
// (пустая cmd — все).
func (s *Server) Packets(cmd string) []Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Packet
	for _, p := range s.packets {
		if cmd == "" || p.Cmd == cmd {
			out = append(out, p)
		}
	}
	return out
}

// WaitFor ждёт, пока клиент пришлёт n пакетов cmd.
func (s *Server) WaitFor(cmd string, n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		s.mu.Lock()
		count := 0
		for _, p := range s.packets {
			if p.Cmd == cmd {
				count++
			}
		}
		ch := s.notify
		s.mu.Unlock()
		if count >= n {
			return true
		}
		select {
		case <-ch:
		case <-deadline:
			return false
		}
	}
}

// Checked — отмеченные на сервере локации.
func (s *Server) Checked() map[int64]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]bool, len(s.checked))
	for k, v := range s.checked {
		out[k] = v
	}
	return out
}

func packet(cmd string, fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["cmd"] = cmd
	return out
}
