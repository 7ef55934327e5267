// Package observer defines the in-world sensors (NPCs) used for detection.
// This package is PURE and must NOT import any infrastructure packages.
package observer

// Role determines what an observer cares about and how harshly a
// detection by them is scored.
type Role string

const (
	RoleBoss     Role = "Boss"
	RoleCop      Role = "Cop"
	RoleCoworker Role = "Coworker"
	RoleSecurity Role = "Security"
	RoleCivilian Role = "Civilian"
)

// Observer is an NPC sensor with a vision model and an optional patrol route.
type Observer struct {
	ID       string `json:"id"`
	Role     Role   `json:"role"`
	Position Vec3   `json:"position"`
	Facing   Vec3   `json:"facing"` // Unit vector

	VisionRange       float64 `json:"vision_range"`        // > 0
	VisionConeDegrees float64 `json:"vision_cone_degrees"` // (0, 360]
	AudioSensitivity  float64 `json:"audio_sensitivity"`   // 0-1

	CaresAboutLegality       bool `json:"cares_about_legality"`
	CaresAboutJobPerformance bool `json:"cares_about_job_performance"`

	LocationID string `json:"location_id"`

	PatrolWaypoints      []Vec3  `json:"patrol_waypoints"`
	CurrentWaypointIndex int     `json:"current_waypoint_index"`
	NextPatrolHours      float64 `json:"next_patrol_hours"` // Game-hour deadline for the next step
}

// New creates an observer with sensible per-role defaults. Cops and
// civilians notice illegal acts; bosses and coworkers notice slacking;
// security guards notice both.
func New(id string, role Role) *Observer {
	o := &Observer{
		ID:                id,
		Role:              role,
		Facing:            Vec3{Z: 1},
		VisionRange:       8,
		VisionConeDegrees: 120,
		AudioSensitivity:  0.5,
	}

	switch role {
	case RoleBoss:
		o.CaresAboutJobPerformance = true
	case RoleCop:
		o.CaresAboutLegality = true
		o.VisionRange = 12
	case RoleCoworker:
		o.CaresAboutJobPerformance = true
		o.VisionRange = 6
	case RoleSecurity:
		o.CaresAboutLegality = true
		o.CaresAboutJobPerformance = true
		o.VisionConeDegrees = 160
	case RoleCivilian:
		o.CaresAboutLegality = true
		o.VisionRange = 5
		o.AudioSensitivity = 0.3
	}

	return o
}

// IsLawEnforcement reports whether a detection by this observer carries
// legal weight.
func (o *Observer) IsLawEnforcement() bool {
	return o.Role == RoleCop || o.Role == RoleSecurity
}

// IsAuthority reports whether this observer can sanction job performance.
func (o *Observer) IsAuthority() bool {
	return o.Role == RoleBoss
}

// HasPatrol reports whether the observer walks a route instead of
// standing post.
func (o *Observer) HasPatrol() bool {
	return len(o.PatrolWaypoints) > 0
}
