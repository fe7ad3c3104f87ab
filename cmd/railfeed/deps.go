package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/nats-io/nats.go"

	"github.com/leonardbinet/railfeed/business/data/gtfs"
	"github.com/leonardbinet/railfeed/business/data/realtime"
	"github.com/leonardbinet/railfeed/business/feature"
	"github.com/leonardbinet/railfeed/business/objectstore"
	"github.com/leonardbinet/railfeed/business/orchestrate"
	"github.com/leonardbinet/railfeed/business/poller"
	"github.com/leonardbinet/railfeed/business/resolve"
	"github.com/leonardbinet/railfeed/foundation/config"
	"github.com/leonardbinet/railfeed/foundation/database"
	"github.com/leonardbinet/railfeed/foundation/logger"
)

// commonCfg is every piece of configuration shared by all three
// subcommands, parsed the same way the teacher's gtfs-loader main() parses
// its DB/GTFS structs with ardanlabs/conf (spec §6).
type commonCfg struct {
	conf.Version
	Args conf.Args
	DB   struct {
		User       string `conf:"default:postgres"`
		Password   string `conf:"default:postgres,noprint"`
		Host       string `conf:"default:0.0.0.0"`
		Name       string `conf:"default:postgres"`
		DisableTLS bool   `conf:"default:true"`
	}
	Vendor struct {
		BaseURL  string `conf:"default:https://vendor.example/gare"`
		Username string `conf:"noprint"`
		Password string `conf:"noprint"`
	}
	GTFS struct {
		IndexURL string `conf:"default:https://vendor.example/gtfs/index.csv"`
		WorkDir  string `conf:"default:gtfs_tmp"`
	}
	ObjectStore struct {
		Root string `conf:"default:objectstore_data"`
	}
	Nats struct {
		URL     string `conf:"default:"`
		Enabled bool   `conf:"default:false"`
	}
	SecretsFile string `conf:"default:"`
	Timezone    string `conf:"default:Europe/Paris"`
}

// buildDeps wires every collaborator orchestrate.Deps needs from commonCfg,
// mirroring the teacher's run()-function wiring order: config -> database
// -> domain stores -> engine (gtfs-loader/main.go's run()).
func buildDeps(log *logger.Logger, cfg commonCfg) (*orchestrate.Deps, func(), error) {
	if err := config.LoadSecretsFile(log, cfg.SecretsFile, &cfg); err != nil {
		return nil, nil, fmt.Errorf("loading secrets file: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, nil, fmt.Errorf("loading timezone %s: %w", cfg.Timezone, err)
	}

	db, err := database.Open(database.Config{
		User:       cfg.DB.User,
		Password:   cfg.DB.Password,
		Host:       cfg.DB.Host,
		Name:       cfg.DB.Name,
		DisableTLS: cfg.DB.DisableTLS,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to db: %w", err)
	}

	gtfsStore := gtfs.NewStore(db)
	resolver := resolve.NewResolver(gtfsStore, loc)
	realtimeStore := realtime.NewPostgresStore(db)

	objStore, err := objectstore.NewFileStore(cfg.ObjectStore.Root)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("creating object store: %w", err)
	}

	p := poller.New(poller.Config{
		BaseURL:  cfg.Vendor.BaseURL,
		Username: cfg.Vendor.Username,
		Password: cfg.Vendor.Password,
	}, http.DefaultClient, log)

	var natsConn *nats.Conn
	if cfg.Nats.Enabled {
		natsConn, err = nats.Connect(cfg.Nats.URL)
		if err != nil {
			p.Close()
			_ = db.Close()
			return nil, nil, fmt.Errorf("connecting to nats: %w", err)
		}
	}

	deps := &orchestrate.Deps{
		DB:            db,
		GTFSStore:     gtfsStore,
		Resolver:      resolver,
		RealtimeStore: realtimeStore,
		ObjectStore:   objStore,
		Poller:        p,
		Loc:           loc,
		Log:           log,
		Nats:          natsConn,
		Calendar:      feature.NewBusinessDayCalendar(),
	}

	cleanup := func() {
		p.Close()
		if natsConn != nil {
			natsConn.Close()
		}
		if err := db.Close(); err != nil {
			log.Warnf("closing database: %v", err)
		}
	}
	return deps, cleanup, nil
}

func parseCommonCfg(args []string, prefix string, cfg *commonCfg) error {
	cfg.Version.SVN = build
	cfg.Version.Desc = "railfeed " + prefix
	if err := conf.Parse(args, prefix, cfg); err != nil {
		if err == conf.ErrHelpWanted {
			usage, uerr := conf.Usage(prefix, cfg)
			if uerr != nil {
				return uerr
			}
			fmt.Println(usage)
			os.Exit(0)
		}
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}
