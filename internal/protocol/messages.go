package protocol

// HELLO (client -> server): open a scene on a user's world.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Username        string `json:"username"`
	// Viewer is the authenticated visitor's login, when any. Owner viewers
	// may issue set_building commands; everyone else is read-only.
	Viewer string `json:"viewer,omitempty"`
}

// WELCOME (server -> client): scene parameters plus the placed world.
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SceneID         string      `json:"scene_id"`
	World           WorldParams `json:"world_params"`
	Zones           []ZoneInfo  `json:"zones"`
	TextElements    []TextInfo  `json:"text_elements,omitempty"`
	BackgroundURL   string      `json:"background_url,omitempty"`
	Player          Vec2        `json:"player"`
}

type WorldParams struct {
	TickRateHz        int     `json:"tick_rate_hz"`
	Width             float64 `json:"width"`
	Height            float64 `json:"height"`
	PlayerSpeed       float64 `json:"player_speed"`
	InteractionRadius float64 `json:"interaction_radius"`
}

type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ZoneInfo is a placed zone with its bound repository metadata, absolute world
// coordinates.
type ZoneInfo struct {
	ID           string  `json:"id"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	BuildingType string  `json:"building_type"`
	Label        string  `json:"label"`
	Description  string  `json:"description,omitempty"`
	RepoURL      string  `json:"repo_url,omitempty"`
	RepoFullName string  `json:"repo_full_name,omitempty"`
	Stars        int     `json:"stars,omitempty"`
	Forks        int     `json:"forks,omitempty"`
	Language     string  `json:"language,omitempty"`
}

type TextInfo struct {
	ID              string  `json:"id"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	Content         string  `json:"content"`
	FontSize        int     `json:"font_size"`
	FontFamily      string  `json:"font_family"`
	Color           string  `json:"color"`
	BackgroundColor string  `json:"background_color,omitempty"`
	Rotation        float64 `json:"rotation"`
	Scale           float64 `json:"scale"`
	ZIndex          int     `json:"z_index"`
}

// INPUT (client -> server): the currently-held directional state. A non-zero
// analog axis (touch / on-screen pad) overrides the discrete key flags.
type InputMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Up              bool    `json:"up,omitempty"`
	Down            bool    `json:"down,omitempty"`
	Left            bool    `json:"left,omitempty"`
	Right           bool    `json:"right,omitempty"`
	AxisX           float64 `json:"axis_x,omitempty"`
	AxisY           float64 `json:"axis_y,omitempty"`
}

// ACT actions.
const (
	ActInteract     = "interact"
	ActDismiss      = "dismiss"
	ActOpenJournal  = "open_journal"
	ActCloseJournal = "close_journal"
	ActSetBuilding  = "set_building"
)

// ACT (client -> server): a discrete interaction or customization command.
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Action          string `json:"action"`
	SlotID          string `json:"slot_id,omitempty"`
	BuildingType    string `json:"building_type,omitempty"`
}

// STATE (server -> client): one tick's observable scene state.
type StateMsg struct {
	Type          string  `json:"type"`
	Tick          uint64  `json:"tick"`
	Player        Vec2    `json:"player"`
	ActiveZoneID  string  `json:"active_zone_id,omitempty"`
	ActionBarOpen bool    `json:"action_bar_open"`
	JournalRepo   string  `json:"journal_repo,omitempty"`
	// Pulse drives the active-zone glow, 0..1.
	Pulse float64 `json:"pulse"`
	// Zones are included only on ticks where a zone changed (set_building).
	Zones []ZoneInfo `json:"zones,omitempty"`
}

// ERROR (server -> client).
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}
