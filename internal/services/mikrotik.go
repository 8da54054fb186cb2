package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/go-routeros/routeros/v3"
	"github.com/go-routeros/routeros/v3/proto"

	"fortunet/internal/config"
)

// ActiveSession is a live hotspot session as reported by the router.
// It is a read-through view: never persisted, never cached.
type ActiveSession struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	Address         string `json:"address"`
	MACAddress      string `json:"mac_address"`
	Uptime          string `json:"uptime"`
	IdleTime        string `json:"idle_time"`
	SessionTimeLeft string `json:"session_time_left"`
	BytesIn         int64  `json:"bytes_in"`
	BytesOut        int64  `json:"bytes_out"`
	Profile         string `json:"profile"`
}

// HotspotUser is a router-resident hotspot credential/profile entry.
// LimitUptime, LimitBytesTotal and RateLimit are RouterOS native limit
// fields; RateLimit uses the "rx/tx" form, e.g. "2M/2M".
type HotspotUser struct {
	Name            string `json:"name"`
	Password        string `json:"password,omitempty"`
	Profile         string `json:"profile"`
	MACAddress      string `json:"mac_address,omitempty"`
	Comment         string `json:"comment,omitempty"`
	LimitUptime     string `json:"limit_uptime,omitempty"`
	LimitBytesTotal int64  `json:"limit_bytes_total,omitempty"`
	RateLimit       string `json:"rate_limit,omitempty"`
	Disabled        bool   `json:"disabled"`
}

// SystemInfo is a snapshot of the router's resource state.
type SystemInfo struct {
	Identity    string `json:"identity"`
	Version     string `json:"version"`
	Uptime      string `json:"uptime"`
	CPULoad     string `json:"cpu_load"`
	FreeMemory  string `json:"free_memory"`
	TotalMemory string `json:"total_memory"`
}

const blockedAddressList = "blocked_users"

// MikroTikService wraps the RouterOS API behind a single long-lived
// connection with app-managed reconnect. Every command gets
// cfg.MaxAttempts tries; a failed attempt tears the connection down so
// the next try dials fresh. The router being temporarily unreachable
// is a normal condition surfaced as ErrRouterUnavailable, never a
// reason to crash.
type MikroTikService struct {
	cfg config.MikroTikConfig

	mu     sync.Mutex
	client *routeros.Client
}

func NewMikroTikService(cfg config.MikroTikConfig) *MikroTikService {
	return &MikroTikService{cfg: cfg}
}

// connect dials the router. Caller holds s.mu.
func (s *MikroTikService) connect(ctx context.Context) error {
	if s.client != nil {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var (
		client *routeros.Client
		err    error
	)
	if s.cfg.UseTLS {
		client, err = routeros.DialTLSContext(dialCtx, s.cfg.Address(), s.cfg.Username, s.cfg.Password, &tls.Config{InsecureSkipVerify: true})
	} else {
		client, err = routeros.DialContext(dialCtx, s.cfg.Address(), s.cfg.Username, s.cfg.Password)
	}
	if err != nil {
		return err
	}

	log.Printf("Connected to MikroTik at %s", s.cfg.Address())
	s.client = client
	return nil
}

// run executes one API sentence, reconnecting and retrying within the
// configured attempt budget.
func (s *MikroTikService) run(ctx context.Context, sentence ...string) (*routeros.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.connect(ctx); err != nil {
			lastErr = err
			continue
		}

		reply, err := s.client.Run(sentence...)
		if err == nil {
			return reply, nil
		}

		lastErr = err
		s.client.Close()
		s.client = nil
	}
	return nil, fmt.Errorf("%w: %v", ErrRouterUnavailable, lastErr)
}

// Close tears down the router connection.
func (s *MikroTikService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
}

// ActiveSessions lists the live hotspot sessions.
func (s *MikroTikService) ActiveSessions(ctx context.Context) ([]ActiveSession, error) {
	reply, err := s.run(ctx, "/ip/hotspot/active/print")
	if err != nil {
		return nil, err
	}

	sessions := make([]ActiveSession, 0, len(reply.Re))
	for _, re := range reply.Re {
		sessions = append(sessions, ActiveSession{
			ID:              re.Map[".id"],
			Username:        re.Map["user"],
			Address:         re.Map["address"],
			MACAddress:      re.Map["mac-address"],
			Uptime:          re.Map["uptime"],
			IdleTime:        re.Map["idle-time"],
			SessionTimeLeft: re.Map["session-time-left"],
			BytesIn:         parseBytes(re.Map["bytes-in"]),
			BytesOut:        parseBytes(re.Map["bytes-out"]),
			Profile:         re.Map["profile"],
		})
	}
	return sessions, nil
}

// SessionByAddress returns the live session for a client IP, or
// ErrNotFound when the address has no session.
func (s *MikroTikService) SessionByAddress(ctx context.Context, address string) (*ActiveSession, error) {
	sessions, err := s.ActiveSessions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].Address == address {
			return &sessions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no active session for %s", ErrNotFound, address)
}

// DisconnectSession removes an active session by router id.
func (s *MikroTikService) DisconnectSession(ctx context.Context, sessionID string) error {
	_, err := s.run(ctx, "/ip/hotspot/active/remove", "=.id="+sessionID)
	return err
}

// BlockAddress puts an address on the blocked firewall address list.
func (s *MikroTikService) BlockAddress(ctx context.Context, address, comment string) error {
	if comment == "" {
		comment = "Blocked user: " + address
	}
	_, err := s.run(ctx,
		"/ip/firewall/address-list/add",
		"=address="+address,
		"=list="+blockedAddressList,
		"=comment="+comment,
	)
	return err
}

// HotspotUsers lists the router's hotspot user entries.
func (s *MikroTikService) HotspotUsers(ctx context.Context) ([]HotspotUser, error) {
	reply, err := s.run(ctx, "/ip/hotspot/user/print")
	if err != nil {
		return nil, err
	}

	users := make([]HotspotUser, 0, len(reply.Re))
	for _, re := range reply.Re {
		users = append(users, hotspotUserFromSentence(re))
	}
	return users, nil
}

// UpsertHotspotUser creates the hotspot user or updates it in place
// when an entry with the same name exists.
func (s *MikroTikService) UpsertHotspotUser(ctx context.Context, user HotspotUser) error {
	reply, err := s.run(ctx, "/ip/hotspot/user/print", "?name="+user.Name)
	if err != nil {
		return err
	}

	if len(reply.Re) > 0 {
		args := append([]string{"/ip/hotspot/user/set", "=.id=" + reply.Re[0].Map[".id"]}, hotspotUserArgs(user, false)...)
		_, err = s.run(ctx, args...)
		return err
	}

	args := append([]string{"/ip/hotspot/user/add"}, hotspotUserArgs(user, true)...)
	_, err = s.run(ctx, args...)
	return err
}

// SystemInfo reads the router identity and resource counters.
func (s *MikroTikService) SystemInfo(ctx context.Context) (*SystemInfo, error) {
	resource, err := s.run(ctx, "/system/resource/print")
	if err != nil {
		return nil, err
	}
	identity, err := s.run(ctx, "/system/identity/print")
	if err != nil {
		return nil, err
	}

	info := &SystemInfo{}
	if len(resource.Re) > 0 {
		m := resource.Re[0].Map
		info.Version = m["version"]
		info.Uptime = m["uptime"]
		info.CPULoad = m["cpu-load"]
		info.FreeMemory = m["free-memory"]
		info.TotalMemory = m["total-memory"]
	}
	if len(identity.Re) > 0 {
		info.Identity = identity.Re[0].Map["name"]
	}
	return info, nil
}

func hotspotUserFromSentence(re *proto.Sentence) HotspotUser {
	return HotspotUser{
		Name:            re.Map["name"],
		Profile:         re.Map["profile"],
		MACAddress:      re.Map["mac-address"],
		Comment:         re.Map["comment"],
		LimitUptime:     re.Map["limit-uptime"],
		LimitBytesTotal: parseBytes(re.Map["limit-bytes-total"]),
		RateLimit:       re.Map["rate-limit"],
		Disabled:        re.Map["disabled"] == "true",
	}
}

// hotspotUserArgs translates a HotspotUser into API words. The name is
// only sent on add; set addresses the entry by .id.
func hotspotUserArgs(user HotspotUser, includeName bool) []string {
	var args []string
	if includeName {
		args = append(args, "=name="+user.Name)
	}
	if user.Password != "" {
		args = append(args, "=password="+user.Password)
	}
	if user.Profile != "" {
		args = append(args, "=profile="+user.Profile)
	}
	if user.MACAddress != "" {
		args = append(args, "=mac-address="+user.MACAddress)
	}
	if user.Comment != "" {
		args = append(args, "=comment="+user.Comment)
	}
	if user.LimitUptime != "" {
		args = append(args, "=limit-uptime="+user.LimitUptime)
	}
	if user.LimitBytesTotal > 0 {
		args = append(args, "=limit-bytes-total="+strconv.FormatInt(user.LimitBytesTotal, 10))
	}
	if user.RateLimit != "" {
		args = append(args, "=rate-limit="+user.RateLimit)
	}
	return args
}

func parseBytes(value string) int64 {
	if value == "" {
		return 0
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
