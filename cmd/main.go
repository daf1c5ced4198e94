package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/wes-io-live/uniqueid/internal/config"
	"github.com/weiawesome/wes-io-live/uniqueid/internal/dispatch"
	"github.com/weiawesome/wes-io-live/uniqueid/internal/generator"
	idgrpc "github.com/weiawesome/wes-io-live/uniqueid/internal/grpc"
	"github.com/weiawesome/wes-io-live/uniqueid/internal/handler"
	"github.com/weiawesome/wes-io-live/uniqueid/internal/proxy"
	"github.com/weiawesome/wes-io-live/uniqueid/internal/resp"
	"github.com/weiawesome/wes-io-live/uniqueid/internal/service"
	"github.com/weiawesome/wes-io-live/uniqueid/pkg/jwt"
	pkglog "github.com/weiawesome/wes-io-live/uniqueid/pkg/log"
	"github.com/weiawesome/wes-io-live/uniqueid/pkg/middleware"
	"github.com/weiawesome/wes-io-live/uniqueid/pkg/pubsub"
)

const serviceName = "uniqueid"

var configDir string

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "Snowflake and UUID generator with a token-substituting command proxy",
	Long: `uniqueid serves snowflake, UUID and other identifiers over RESP, gRPC
and HTTP. ID.EXEC forwards a command to the backend Redis after replacing
the first $SNOWFLAKE$, $UUIDV1$ or $UUIDV4$ argument with a fresh identifier.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd)
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&configDir, "config-dir", "./config", "directory containing config.yaml")
	flags.String("region", "", "snowflake region id (0-31)")
	flags.String("worker", "", "snowflake worker id (0-31)")
	flags.Int("resp-port", 0, "RESP listen port")
	flags.Int("grpc-port", 0, "gRPC listen port")
	flags.Int("http-port", 0, "HTTP listen port")
	flags.String("redis-addr", "", "backend Redis address for forwarded commands")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command) error {
	// Load configuration
	cfg, err := config.Load(configDir, cmd.Flags())
	if err != nil {
		l := pkglog.L()
		l.Error().Err(err).Msg("failed to load config")
		return err
	}

	if cfg.Log.ServiceName == "" {
		cfg.Log.ServiceName = serviceName
	}
	pkglog.Init(cfg.Log)
	logger := pkglog.L()

	logger.Info().Msg("starting uniqueid")

	// Initialize Snowflake generator
	regionID, workerID, err := cfg.Snowflake.Coordinates(logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid snowflake coordinates")
	}
	snowflake, err := generator.NewSnowflakeGenerator(generator.SnowflakeConfig{
		RegionID:    regionID,
		WorkerID:    workerID,
		Epoch:       cfg.Snowflake.Epoch,
		MaxBackward: cfg.Snowflake.MaxBackward(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create snowflake generator")
	}
	logger.Info().
		Int64(pkglog.FieldRegionID, regionID).
		Int64(pkglog.FieldWorkerID, workerID).
		Int64("epoch", snowflake.Epoch()).
		Msg("snowflake generator initialized")

	// Initialize NanoID generator
	nanoidGen, err := generator.NewNanoIDGenerator(cfg.NanoID.Size, cfg.NanoID.Alphabet)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create nanoid generator")
	}

	// Initialize CUID2 generator
	cuid2Gen, err := generator.NewCUID2Generator(cfg.CUID2.Length)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create cuid2 generator")
	}

	// Initialize Sonyflake generator on the same coordinates
	sonyflakeGen, err := generator.NewSonyflakeGenerator(regionID, workerID, snowflake.Epoch())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create sonyflake generator")
	}

	svc, err := service.NewIdentifierService(snowflake,
		generator.NewULIDGenerator(nil),
		generator.NewKSUIDGenerator(nil),
		nanoidGen,
		cuid2Gen,
		sonyflakeGen,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create identifier service")
	}

	// Backend for forwarded commands
	var backend dispatch.Invoker
	var redisBackend *dispatch.RedisBackend
	if cfg.Backend.Redis.Address != "" {
		redisBackend, err = dispatch.NewRedisBackend(cfg.Backend.Redis)
		if err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.Backend.Redis.Address).Msg("failed to connect to backend redis")
		}
		backend = redisBackend
		logger.Info().Str("addr", cfg.Backend.Redis.Address).Msg("backend redis connected")
	} else {
		logger.Warn().Msg("no backend redis configured, only ID.* commands are served")
	}

	// Issuance events
	publisher, err := pubsub.NewPublisher(cfg.Events)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Events.Driver).Msg("failed to create event publisher")
	}

	router := dispatch.NewRouter(backend)
	service.RegisterCommands(router, svc)
	px := proxy.New(router, proxy.WithPublisher(publisher, cfg.Events.Channel))
	px.Register(router)
	logger.Debug().Strs("commands", router.Commands()).Msg("commands registered")

	// Start RESP server
	respAddr := fmt.Sprintf("%s:%d", cfg.RESP.Host, cfg.RESP.Port)
	respServer, err := resp.StartRESPServer(respAddr, router, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start resp server")
	}

	// Start gRPC server
	grpcAddr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
	grpcServer, err := idgrpc.StartGRPCServer(grpcAddr, svc, px, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start grpc server")
	}

	// Start HTTP server
	var httpServer *http.Server
	if cfg.HTTP.Enabled {
		var validator middleware.TokenValidator
		if cfg.Auth.JWTSecret != "" {
			mgr, err := jwt.NewManager([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, time.Hour)
			if err != nil {
				logger.Fatal().Err(err).Msg("failed to create jwt manager")
			}
			validator = mgr
		}

		if pkglog.ParseLevel(cfg.Log.Level) > zerolog.DebugLevel {
			gin.SetMode(gin.ReleaseMode)
		}
		engine := handler.NewEngine(handler.NewHandler(svc, px, validator), pkglog.GinMiddleware(logger))

		httpServer = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
			Handler: engine,
		}
		go func() {
			logger.Info().Str("addr", httpServer.Addr).Msg("http server listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal().Err(err).Msg("failed to start http server")
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down uniqueid")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Drain the front ends together; backend and publisher close after.
	g, gCtx := errgroup.WithContext(ctx)
	if httpServer != nil {
		g.Go(func() error {
			return httpServer.Shutdown(gCtx)
		})
	}
	g.Go(func() error {
		grpcServer.GracefulStop()
		return nil
	})
	g.Go(respServer.Close)
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	if redisBackend != nil {
		redisBackend.Close()
	}
	if err := publisher.Close(); err != nil {
		logger.Warn().Err(err).Msg("event publisher close")
	}

	logger.Info().Msg("uniqueid stopped")
	return nil
}
