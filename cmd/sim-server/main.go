// Package main is the entry point for the Vida Doble authoritative
// simulation server. It only handles dependency injection and server
// initialization. NO business logic belongs here.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vidadoble/juego/server/internal/clock"
	"github.com/vidadoble/juego/server/internal/domain/observer"
	"github.com/vidadoble/juego/server/internal/engine"
	"github.com/vidadoble/juego/server/internal/events"
	"github.com/vidadoble/juego/server/internal/infra/storage"
	"github.com/vidadoble/juego/server/internal/network"
	"github.com/vidadoble/juego/server/internal/platform/config"
	"github.com/vidadoble/juego/server/internal/platform/logger"
	"github.com/vidadoble/juego/server/internal/platform/metrics"
)

const gameID = "GAME_1" // Default singleton game ID

// SQLitePersisterAdapter translates domain events to storage records.
type SQLitePersisterAdapter struct {
	repo *storage.SQLiteEventRepository
}

func (a *SQLitePersisterAdapter) Append(event events.GameEvent) error {
	payloadBytes, _ := json.Marshal(event.Payload)
	var payloadMap map[string]interface{}
	json.Unmarshal(payloadBytes, &payloadMap)

	record := storage.EventRecord{
		ID:        event.ID,
		GameID:    gameID,
		Timestamp: event.Timestamp,
		EventType: string(event.Type),
		ActorID:   event.ActorID,
		TargetID:  event.TargetID,
		Payload:   payloadMap,
		GameDay:   event.GameDay,
	}
	started := time.Now()
	err := a.repo.Append(context.Background(), record)
	metrics.Get().RecordEventWrite(time.Since(started), err)
	return err
}

// ledgerAccount tracks one actor's funds and income provenance.
type ledgerAccount struct {
	balance     float64
	legitIncome float64
	totalIncome float64
	frozen      float64
}

// InMemoryLedger is a minimal economy backing the audit flow. A real
// deployment would swap this for the economy service.
type InMemoryLedger struct {
	mu       sync.Mutex
	accounts map[string]*ledgerAccount
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{accounts: make(map[string]*ledgerAccount)}
}

func (l *InMemoryLedger) account(actorID string) *ledgerAccount {
	acc, exists := l.accounts[actorID]
	if !exists {
		acc = &ledgerAccount{balance: 1000, legitIncome: 1000, totalIncome: 1000}
		l.accounts[actorID] = acc
	}
	return acc
}

// RecordIncome books earnings against the actor, tagged by legitimacy.
func (l *InMemoryLedger) RecordIncome(actorID string, amount float64, legitimate bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.account(actorID)
	acc.balance += amount
	acc.totalIncome += amount
	if legitimate {
		acc.legitIncome += amount
	}
}

func (l *InMemoryLedger) LegitimateIncomeRatio(actorID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.account(actorID)
	if acc.totalIncome <= 0 {
		return 1.0
	}
	return acc.legitIncome / acc.totalIncome
}

func (l *InMemoryLedger) Balance(actorID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.account(actorID).balance
}

func (l *InMemoryLedger) FreezeFunds(actorID string, amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.account(actorID)
	if amount > acc.balance {
		amount = acc.balance
	}
	acc.balance -= amount
	acc.frozen += amount
}

func (l *InMemoryLedger) UnfreezeFunds(actorID string, amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.account(actorID)
	if amount > acc.frozen {
		amount = acc.frozen
	}
	acc.frozen -= amount
	acc.balance += amount
}

func (l *InMemoryLedger) Fine(actorID string, amount float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.account(actorID)
	if amount > acc.frozen {
		amount = acc.frozen
	}
	acc.frozen -= amount
}

// EvidenceLocker answers whether a raid at 90 heat is justified. It
// considers an actor incriminated once enough detections are on record.
type EvidenceLocker struct {
	eventLog *events.EventLog
	minHits  int
}

func (el *EvidenceLocker) HasEvidence(actorID string) bool {
	hits := 0
	for _, ev := range el.eventLog.GetByActor(actorID) {
		if ev.Type == events.EventTypeDetection {
			hits++
		}
	}
	return hits >= el.minHits
}

func bootstrapObservers(ctx context.Context, repo *storage.SQLiteObserverRepository, eng *engine.Engine, appLogger *logger.Logger) {
	appLogger.Info("Checking DB for existing observers...")
	snaps, err := repo.GetByGameID(ctx, gameID)
	if err != nil {
		appLogger.Error("Failed to query DB for observers: " + err.Error())
		return
	}

	if len(snaps) == 0 {
		appLogger.Info("Database empty. Seeding default observer roster...")
		boss := observer.New("OBS_BOSS", observer.RoleBoss)
		boss.LocationID = "office"
		boss.Position = observer.Vec3{X: 2, Y: 0, Z: 8}
		boss.Facing = observer.Vec3{Z: -1}

		cop := observer.New("OBS_COP_01", observer.RoleCop)
		cop.LocationID = "street"
		cop.PatrolWaypoints = []observer.Vec3{
			{X: 0, Y: 0, Z: 0},
			{X: 20, Y: 0, Z: 0},
			{X: 20, Y: 0, Z: 20},
			{X: 0, Y: 0, Z: 20},
		}

		guard := observer.New("OBS_SEC_01", observer.RoleSecurity)
		guard.LocationID = "office"
		guard.Position = observer.Vec3{X: 10, Y: 0, Z: 0}
		guard.Facing = observer.Vec3{Z: 1}

		neighbor := observer.New("OBS_CIV_01", observer.RoleCivilian)
		neighbor.LocationID = "apartment"
		neighbor.Position = observer.Vec3{X: -3, Y: 0, Z: 0}
		neighbor.Facing = observer.Vec3{X: 1}

		for _, o := range []*observer.Observer{boss, cop, guard, neighbor} {
			eng.Detection().RegisterObserver(o)
			poseBytes, _ := json.Marshal(o)
			repo.Upsert(ctx, storage.ObserverSnapshot{
				ObserverID: o.ID,
				GameID:     gameID,
				Role:       string(o.Role),
				LocationID: o.LocationID,
				PoseJSON:   string(poseBytes),
			})
		}
	} else {
		appLogger.Info("Reconstructing observers from SQLite state...")
		for _, snap := range snaps {
			o := observer.New(snap.ObserverID, observer.Role(snap.Role))
			if err := json.Unmarshal([]byte(snap.PoseJSON), o); err != nil {
				appLogger.Warn("Corrupt observer snapshot for " + snap.ObserverID + ", using role defaults")
			}
			eng.Detection().RegisterObserver(o)
		}
	}
}

func bootstrapHeat(ctx context.Context, repo *storage.SQLiteHeatRepository, eng *engine.Engine, appLogger *logger.Logger) {
	snaps, err := repo.GetByGameID(ctx, gameID)
	if err != nil {
		appLogger.Error("Failed to query DB for heat states: " + err.Error())
		return
	}
	for _, snap := range snaps {
		eng.Heat().Restore(engine.HeatSnapshot{
			ActorID:       snap.ActorID,
			Level:         snap.Level,
			Sources:       snap.Sources,
			Surveillance:  snap.Surveillance,
			AuditActive:   snap.AuditActive,
			AuditDeadline: snap.AuditDeadline,
			WarrantActive: snap.WarrantActive,
		})
	}
	if len(snaps) > 0 {
		appLogger.Info("Restored heat states from SQLite.")
	}
}

func registerRiskProfiles(eng *engine.Engine) {
	det := eng.Detection()
	det.RegisterRiskProfile("drug_dealing", engine.RiskProfile{Illegal: true, VisualProfile: 0.8})
	det.RegisterRiskProfile("burglary", engine.RiskProfile{Illegal: true, VisualProfile: 0.7})
	det.RegisterRiskProfile("hacking", engine.RiskProfile{Illegal: true, VisualProfile: 0.3})
	det.RegisterRiskProfile("money_laundering", engine.RiskProfile{Illegal: true, VisualProfile: 0.1})
	det.RegisterRiskProfile("slacking", engine.RiskProfile{Illegal: false, VisualProfile: 0.6})
	det.RegisterRiskProfile("side_hustle", engine.RiskProfile{Illegal: false, VisualProfile: 0.4})
}

func main() {
	configPath := flag.String("config", "vidadoble.yml", "path to the server config file")
	flag.Parse()

	log.Println("[SIM-SERVER] Initializing 'Vida Doble' Authoritative Server...")

	appLogger := logger.NewLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.Error("Failed to load config: " + err.Error())
		os.Exit(1)
	}

	appLogger.Info("Initializing SQLite database '" + cfg.Server.DBPath + "'...")
	db, err := storage.InitSQLite(cfg.Server.DBPath)
	if err != nil {
		appLogger.Error("Failed to initialize SQLite: " + err.Error())
		os.Exit(1)
	}
	eventRepo := storage.NewSQLiteEventRepository(db)
	heatRepo := storage.NewSQLiteHeatRepository(db)
	observerRepo := storage.NewSQLiteObserverRepository(db)
	eventPersister := &SQLitePersisterAdapter{repo: eventRepo}

	appLogger.Info("Bootstrapping EventLog...")
	eventLog := events.NewEventLog(eventPersister)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Attempt to recover the last known game clock state
	gameClock := clock.New()
	var lastTick int64
	var tickPayloadStr string
	err = db.QueryRowContext(ctx, "SELECT payload FROM events WHERE game_id = ? AND event_type = ? ORDER BY timestamp DESC LIMIT 1", gameID, string(events.EventTypeTimeTick)).Scan(&tickPayloadStr)
	if err == nil {
		var tickPayload engine.TimeTickPayload
		if err := json.Unmarshal([]byte(tickPayloadStr), &tickPayload); err == nil {
			gameClock = clock.NewAt(tickPayload.GameDay, tickPayload.GameHour)
			lastTick = tickPayload.TickNumber
			appLogger.Info("Restored game clock from database.")
		}
	}

	appLogger.Info("Bootstrapping Engine Subsystems...")
	ledger := NewInMemoryLedger()
	locker := &EvidenceLocker{eventLog: eventLog, minHits: 3}

	// Open terrain for now. Plug real level geometry in here.
	raycast := engine.RaycasterFunc(func(from, to observer.Vec3) bool {
		return false
	})

	gameEngine := engine.NewEngine(eventLog, appLogger, gameClock, raycast, ledger, locker)
	gameEngine.Ticker().OverrideTick(lastTick)
	gameEngine.Ticker().SetCadence(time.Duration(cfg.Tick.RateSeconds)*time.Second, cfg.Tick.GameMinutesPerTick)
	gameEngine.Detection().SetPatrolInterval(cfg.Detection.PatrolIntervalHours)
	gameEngine.Detection().SetDefaultVisualProfile(cfg.Detection.DefaultVisualProfile)
	gameEngine.Heat().SetDecayRate(cfg.Heat.DecayPerHour)
	gameEngine.Heat().SetAuditTerms(cfg.Heat.AuditWindowHours, cfg.Heat.AuditFreezeFraction, cfg.Heat.AuditFineRate)
	gameEngine.Activities().SetDetectionPenalty(cfg.Activity.DetectionPenalty)
	gameEngine.Activities().SetSampleWeight(cfg.Activity.SampleWeight)

	registerRiskProfiles(gameEngine)
	bootstrapObservers(ctx, observerRepo, gameEngine, appLogger)
	bootstrapHeat(ctx, heatRepo, gameEngine, appLogger)

	gameEngine.Start(ctx)

	// Automated State Backup Routine
	go func() {
		backupTicker := time.NewTicker(5 * time.Second)
		defer backupTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-backupTicker.C:
				for _, actorID := range gameEngine.HeatActorIDs() {
					snap := gameEngine.ActorHeatSnapshot(actorID)
					_ = heatRepo.Upsert(ctx, storage.HeatSnapshot{
						ActorID:       snap.ActorID,
						GameID:        gameID,
						Level:         snap.Level,
						Sources:       snap.Sources,
						Surveillance:  snap.Surveillance,
						AuditActive:   snap.AuditActive,
						AuditDeadline: snap.AuditDeadline,
						WarrantActive: snap.WarrantActive,
					})
				}
				for _, o := range gameEngine.ObserverPoses() {
					poseBytes, _ := json.Marshal(o)
					_ = observerRepo.Upsert(ctx, storage.ObserverSnapshot{
						ObserverID: o.ID,
						GameID:     gameID,
						Role:       string(o.Role),
						LocationID: o.LocationID,
						PoseJSON:   string(poseBytes),
					})
				}
			}
		}
	}()

	appLogger.Info("Bootstrapping WebSocket Hub...")
	hub := network.NewHub(appLogger, gameEngine)
	go hub.Run(ctx)
	hub.StartEventPoller(ctx, eventLog)

	// Setup API Routes
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r, appLogger)
	})

	http.HandleFunc("/metrics", metrics.Handler())
	http.HandleFunc("/metrics/prometheus", metrics.PrometheusHandler())

	http.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		actorID := r.URL.Query().Get("actor_id")
		if actorID == "" {
			http.Error(w, "actor_id is required", http.StatusBadRequest)
			return
		}

		type activityView struct {
			ID          string  `json:"id"`
			Kind        string  `json:"kind"`
			State       string  `json:"state"`
			RiskTag     string  `json:"risk_tag,omitempty"`
			Performance float64 `json:"performance"`
			Elapsed     float64 `json:"elapsed_seconds"`
			Duration    float64 `json:"duration_seconds"`
		}
		acts := []activityView{}
		for _, a := range gameEngine.ActivitiesByOwner(actorID) {
			acts = append(acts, activityView{
				ID:          a.ID,
				Kind:        string(a.Kind),
				State:       string(a.State),
				RiskTag:     a.RiskTag,
				Performance: a.PerformanceScore,
				Elapsed:     a.ElapsedSeconds,
				Duration:    a.DurationSeconds,
			})
		}

		day, hour := gameEngine.GameTime()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"game_day":   day,
			"game_hour":  hour,
			"heat":       gameEngine.ActorHeatSnapshot(actorID),
			"balance":    ledger.Balance(actorID),
			"activities": acts,
		})
	})

	http.HandleFunc("/api/heat/reduce", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		type requestParams struct {
			ActorID string  `json:"actor_id"`
			Amount  float64 `json:"amount"`
			Cause   string  `json:"cause"`
		}
		var req requestParams
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}
		if req.ActorID == "" || req.Amount <= 0 {
			http.Error(w, "actor_id and a positive amount are required", http.StatusBadRequest)
			return
		}

		gameEngine.ReduceActorHeat(req.ActorID, req.Amount, req.Cause)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ok",
			"level":  gameEngine.ActorHeatLevel(req.ActorID),
		})
	})

	http.HandleFunc("/api/income", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		type requestParams struct {
			ActorID    string  `json:"actor_id"`
			Amount     float64 `json:"amount"`
			Legitimate bool    `json:"legitimate"`
		}
		var req requestParams
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}
		if req.ActorID == "" || req.Amount <= 0 {
			http.Error(w, "actor_id and a positive amount are required", http.StatusBadRequest)
			return
		}

		ledger.RecordIncome(req.ActorID, req.Amount, req.Legitimate)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	go func() {
		log.Printf("[SIM-SERVER] HTTP API & WS Server listening on %s", cfg.Server.Addr)
		if err := http.ListenAndServe(cfg.Server.Addr, nil); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	log.Println("[SIM-SERVER] Server running. Press Ctrl+C to exit.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[SIM-SERVER] Shutting down...")
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow cross-origin requests for the web client
	},
}

// serveWs handles websocket requests from the peer.
func serveWs(hub *network.Hub, w http.ResponseWriter, r *http.Request, log *logger.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("Failed to upgrade websocket connection")
		return
	}

	client := network.NewClient(hub, conn)
	client.Register()

	go client.WritePump()
	go client.ReadPump()
}
