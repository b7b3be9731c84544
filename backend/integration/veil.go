// Copyright (C) 2025 veil.chat <dev@veil.chat>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package integration

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/veilchat/veil/backend/backup"
	"github.com/veilchat/veil/backend/handlers"
	"github.com/veilchat/veil/backend/importer"
	"github.com/veilchat/veil/backend/middleware"
	"github.com/veilchat/veil/backend/relay"
	"github.com/veilchat/veil/backend/session"
	"github.com/veilchat/veil/backend/storage"
	"github.com/veilchat/veil/backend/storage/postgres"
	redisstore "github.com/veilchat/veil/backend/storage/redis"
	"github.com/veilchat/veil/backend/sync"
)

// Integration wires the whole daemon together so it can be embedded into an
// existing router: session, sync engine, backup service, import adapter and
// their HTTP surface.
type Integration struct {
	store   storage.Store
	queue   storage.Queue
	session *session.Manager
	engine  *sync.Engine
	backup  *backup.Service

	groupHandler    *handlers.GroupHandler
	timelineHandler *handlers.TimelineHandler
	channelHandler  *handlers.ChannelHandler
	inviteHandler   *handlers.InviteHandler
	backupHandler   *handlers.BackupHandler
	importHandler   *handlers.ImportHandler

	jwtSecret string
	jwtIssuer string
}

// Config holds the external dependencies of the daemon. DB and Redis are
// optional; without them everything runs on in-memory storage.
type Config struct {
	DB        *sql.DB
	Redis     *redis.Client
	Relay     relay.Relay
	Identity  *session.Identity
	JWTSecret string
	JWTIssuer string
}

func NewIntegration(config *Config) (*Integration, error) {
	var store storage.Store
	if config.DB != nil {
		pg := postgres.NewStore(config.DB)
		if err := pg.Migrate(); err != nil {
			return nil, err
		}
		store = pg
	} else {
		store = storage.NewMemoryStore()
	}

	var queue storage.Queue
	if config.Redis != nil {
		queue = redisstore.NewQueueStore(config.Redis)
	} else {
		queue = storage.NewMemoryQueue()
	}

	rel := config.Relay
	if rel == nil {
		rel = relay.NewMemoryRelay()
	}

	sess := session.NewManager(config.Identity)
	engine := sync.NewEngine(sess, rel, store, queue)
	backupSvc := backup.NewService(sess, rel, store)
	im := importer.NewImporter(engine)

	return &Integration{
		store:           store,
		queue:           queue,
		session:         sess,
		engine:          engine,
		backup:          backupSvc,
		groupHandler:    handlers.NewGroupHandler(sess, engine, store),
		timelineHandler: handlers.NewTimelineHandler(engine),
		channelHandler:  handlers.NewChannelHandler(engine),
		inviteHandler:   handlers.NewInviteHandler(engine),
		backupHandler:   handlers.NewBackupHandler(backupSvc),
		importHandler:   handlers.NewImportHandler(im),
		jwtSecret:       config.JWTSecret,
		jwtIssuer:       config.JWTIssuer,
	}, nil
}

// RegisterRoutes adds the daemon API to an existing router. If authMiddleware
// is nil the built-in JWT validation is used.
func (v *Integration) RegisterRoutes(router *mux.Router, authMiddleware func(http.Handler) http.Handler) {
	api := router.PathPrefix("/api/veil").Subrouter()

	if authMiddleware != nil {
		api.Use(authMiddleware)
	} else {
		api.Use(middleware.NewAuthMiddleware(v.jwtSecret, v.jwtIssuer))
	}

	// Groups and membership
	api.HandleFunc("/groups", v.groupHandler.CreateGroup).Methods("POST", "OPTIONS")
	api.HandleFunc("/groups", v.groupHandler.ListGroups).Methods("GET", "OPTIONS")
	api.HandleFunc("/groups/{groupId}", v.groupHandler.GetGroup).Methods("GET", "OPTIONS")
	api.HandleFunc("/groups/{groupId}", v.groupHandler.LeaveGroup).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/groups/{groupId}/members", v.groupHandler.AddMember).Methods("POST", "OPTIONS")
	api.HandleFunc("/groups/{groupId}/members/{pubkey}", v.groupHandler.RemoveMember).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/groups/{groupId}/announcement", v.groupHandler.PublishAnnouncement).Methods("PUT", "OPTIONS")
	api.HandleFunc("/groups/{groupId}/announcement", v.groupHandler.GetAnnouncement).Methods("GET", "OPTIONS")

	// Timeline
	api.HandleFunc("/groups/{groupId}/timeline", v.timelineHandler.GetTimeline).Methods("GET", "OPTIONS")
	api.HandleFunc("/groups/{groupId}/messages", v.timelineHandler.SendMessage).Methods("POST", "OPTIONS")
	api.HandleFunc("/groups/{groupId}/refresh", v.timelineHandler.Refresh).Methods("POST", "OPTIONS")
	api.HandleFunc("/groups/{groupId}/events/{eventId}/reactions", v.timelineHandler.React).Methods("POST", "OPTIONS")
	api.HandleFunc("/groups/{groupId}/events/{eventId}/reactions", v.timelineHandler.GetReactions).Methods("GET", "OPTIONS")
	api.HandleFunc("/sync/retry", v.timelineHandler.RetryPending).Methods("POST", "OPTIONS")

	// Channels
	api.HandleFunc("/groups/{groupId}/channels/pinned", v.channelHandler.ListPinned).Methods("GET", "OPTIONS")
	api.HandleFunc("/groups/{groupId}/channels/{channel}/pin", v.channelHandler.SetPin).Methods("PUT", "OPTIONS")
	api.HandleFunc("/groups/{groupId}/channels/{channel}/order", v.channelHandler.SetOrder).Methods("PUT", "OPTIONS")

	// Invites
	api.HandleFunc("/invites", v.inviteHandler.RecordInvite).Methods("POST", "OPTIONS")
	api.HandleFunc("/invites", v.inviteHandler.ListInvites).Methods("GET", "OPTIONS")
	api.HandleFunc("/invites/{inviteId}/accept", v.inviteHandler.AcceptInvite).Methods("POST", "OPTIONS")
	api.HandleFunc("/invites/{inviteId}/reject", v.inviteHandler.RejectInvite).Methods("POST", "OPTIONS")

	// Backup and recovery
	api.HandleFunc("/backup/status", v.backupHandler.Status).Methods("GET", "OPTIONS")
	api.HandleFunc("/backup/run", v.backupHandler.Run).Methods("POST", "OPTIONS")
	api.HandleFunc("/backup/credential", v.backupHandler.Credential).Methods("POST", "OPTIONS")
	api.HandleFunc("/backup/restore", v.backupHandler.Restore).Methods("POST", "OPTIONS")

	// Import
	api.HandleFunc("/import/preview", v.importHandler.Preview).Methods("POST", "OPTIONS")
	api.HandleFunc("/groups/{groupId}/import", v.importHandler.Run).Methods("POST", "OPTIONS")
}

// Engine exposes the sync engine for embedding hosts that want to observe
// timeline changes directly.
func (v *Integration) Engine() *sync.Engine {
	return v.engine
}

// Session exposes the group session manager.
func (v *Integration) Session() *session.Manager {
	return v.session
}

// Backup exposes the backup service.
func (v *Integration) Backup() *backup.Service {
	return v.backup
}

// WarmUp preloads timeline caches for every locally known group.
func (v *Integration) WarmUp(limit int) error {
	groups, err := v.store.ListGroups()
	if err != nil {
		return err
	}
	for _, g := range groups {
		if err := v.engine.WarmUp(g.ID, limit); err != nil {
			return err
		}
	}
	return nil
}
