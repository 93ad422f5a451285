package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/nour-derwich/system-management-pulse-hr/api"
	"github.com/nour-derwich/system-management-pulse-hr/domain"
	"github.com/nour-derwich/system-management-pulse-hr/room"
	"github.com/nour-derwich/system-management-pulse-hr/storage"
	"github.com/nour-derwich/system-management-pulse-hr/subscription"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	tables := storage.Tables{
		Boards:  os.Getenv("BOARDS_TABLE"),
		Columns: os.Getenv("COLUMNS_TABLE"),
		Tasks:   os.Getenv("TASKS_TABLE"),
		Tags:    os.Getenv("TAGS_TABLE"),
	}
	if connStr == "" || tables.Boards == "" || tables.Columns == "" || tables.Tasks == "" || tables.Tags == "" {
		log.Fatal("missing storage config")
	}
	tableStore, err := storage.New(connStr, tables)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	redisOpts, err := redis.ParseURL(redisConn)
	if err != nil {
		parts := strings.Split(redisConn, ",")
		redisOpts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				redisOpts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					redisOpts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	rc := redis.NewClient(redisOpts)

	cacheTTL := 5 * time.Minute
	if v := os.Getenv("SNAPSHOT_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			log.Fatalf("invalid SNAPSHOT_CACHE_TTL: %v", err)
		}
		cacheTTL = d
	}
	var store domain.Store = storage.NewCache(tableStore, rc, cacheTTL)

	testMode := os.Getenv("AUTH0_TEST_MODE") == "1"
	var auth *api.Auth
	if testMode {
		auth = api.NewAuth(nil, "", "")
	} else {
		jwtAudience := os.Getenv("AUTH0_AUDIENCE")
		authDomain := os.Getenv("AUTH0_DOMAIN")
		if jwtAudience == "" || authDomain == "" {
			log.Fatal("missing Auth0 config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", authDomain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, jwtAudience, "https://"+authDomain+"/")
	}

	logger := log.New()
	svc := domain.NewBoardService(store)
	rooms := room.NewRegistry()
	relay := subscription.NewRelay(rc, os.Getenv("EVENTS_CHANNEL"), logger)
	broadcaster := api.NewBroadcaster(svc, rooms, relay, logger)

	// frames published by the other instances reach every local member of
	// the board room; sender exclusion already happened at the origin
	go relay.Subscribe(context.Background(), func(boardID string, frame []byte) {
		for _, member := range rooms.MembersOf(boardID) {
			if err := member.Send(frame); err != nil {
				logger.WithFields(log.Fields{"board": boardID, "conn": member.ID()}).
					WithError(err).Debug("dropping relayed frame")
			}
		}
	})

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, svc, auth, broadcaster, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}
