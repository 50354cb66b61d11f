package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/example/lensshop/pkg/config"
	"github.com/example/lensshop/pkg/identity"
	"github.com/example/lensshop/pkg/models"
	"github.com/example/lensshop/pkg/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const auditService = "storefront-backend"

// CodeSender delivers a verification code to a phone.
type CodeSender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// LogCodeSender writes codes to the log instead of sending an SMS.
type LogCodeSender struct {
	Logger *zap.Logger
}

func (s LogCodeSender) SendCode(_ context.Context, phone, code string) error {
	s.Logger.Info("Verification code issued", zap.String("phone", phone), zap.String("code", code))
	return nil
}

type BackendDeps struct {
	DB      *gorm.DB
	Redis   *repository.RedisRepository
	Audit   repository.AuditLogger
	Sender  CodeSender
	Admins  []string
	CodeTTL time.Duration
	Logger  *zap.Logger
}

// BackendServer is the development implementation of the storefront
// service: products, profiles and orders in SQL, phone codes and the
// profile cache in Redis, and an audit trail in MongoDB.
type BackendServer struct {
	db      *gorm.DB
	redis   *repository.RedisRepository
	audit   repository.AuditLogger
	sender  CodeSender
	admins  map[string]bool
	codeTTL time.Duration
	logger  *zap.Logger

	closers []func() error
}

var _ StorefrontServer = (*BackendServer)(nil)

func NewBackendServer(deps BackendDeps) (*BackendServer, error) {
	if deps.DB == nil || deps.Redis == nil {
		return nil, errors.New("backend server needs a database and redis")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Audit == nil {
		deps.Audit = repository.NopAuditLogger{}
	}
	if deps.Sender == nil {
		deps.Sender = LogCodeSender{Logger: deps.Logger}
	}
	if deps.CodeTTL <= 0 {
		deps.CodeTTL = 5 * time.Minute
	}

	// Auto migrate
	if err := deps.DB.AutoMigrate(&models.Product{}, &models.ProfileRecord{}, &models.VerifiedPhone{}, &models.Order{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	admins := make(map[string]bool, len(deps.Admins))
	for _, a := range deps.Admins {
		admins[a] = true
	}

	return &BackendServer{
		db:      deps.DB,
		redis:   deps.Redis,
		audit:   deps.Audit,
		sender:  deps.Sender,
		admins:  admins,
		codeTTL: deps.CodeTTL,
		logger:  deps.Logger,
	}, nil
}

// OpenBackendServer connects to MySQL, Redis and (when configured) MongoDB.
func OpenBackendServer(cfg *config.Config, logger *zap.Logger) (*BackendServer, error) {
	// Connect to MySQL
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		if cfg.MySQL.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
		}
		if cfg.MySQL.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
		}
	}

	// Redis
	redisRepo := repository.NewRedisRepository(&cfg.Redis)

	// MongoDB
	var audit repository.AuditLogger = repository.NopAuditLogger{}
	var mongoRepo *repository.MongoRepository
	if cfg.MongoDB.URI != "" {
		mongoRepo, err = repository.NewMongoRepository(&cfg.MongoDB)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("failed to connect to MongoDB: %w", err), redisRepo.Close())
		}
		audit = mongoRepo
	} else {
		logger.Info("MongoDB not configured, audit log disabled")
	}

	s, err := NewBackendServer(BackendDeps{
		DB:      db,
		Redis:   redisRepo,
		Audit:   audit,
		Sender:  LogCodeSender{Logger: logger.Named("sms")},
		Admins:  cfg.Backend.Admins,
		CodeTTL: cfg.Backend.CodeTTL,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	s.closers = append(s.closers, redisRepo.Close)
	if mongoRepo != nil {
		s.closers = append(s.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return mongoRepo.Close(ctx)
		})
	}
	if sqlDB, err := db.DB(); err == nil {
		s.closers = append(s.closers, sqlDB.Close)
	}
	return s, nil
}

// NewGRPCServer builds a gRPC server that authenticates callers with
// provider and serves s.
func NewGRPCServer(s StorefrontServer, provider identity.Provider, logger *zap.Logger) *grpc.Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			LoggingInterceptor(logger),
			AuthInterceptor(provider),
		),
	)
	RegisterStorefrontServer(srv, s)
	reflection.Register(srv)
	return srv
}

// Serve listens on addr until the server is stopped.
func Serve(srv *grpc.Server, addr string, logger *zap.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	logger.Info("Storefront backend started", zap.String("address", addr))
	return srv.Serve(lis)
}

// AuthInterceptor resolves the bearer token in the authorization metadata
// into an identity. Calls without a token proceed anonymously; calls with
// a bad token are rejected.
func AuthInterceptor(provider identity.Provider) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		if vals := md.Get(authorizationHeader); len(vals) > 0 && vals[0] != "" {
			id, err := provider.Authenticate(ctx, vals[0])
			if err != nil {
				return nil, status.Error(codes.Unauthenticated, "Unauthorized: invalid identity token")
			}
			ctx = identity.NewContext(ctx, id)
		}
		return handler(ctx, req)
	}
}

func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("latency", time.Since(start)),
			zap.String("code", status.Code(err).String()),
		}
		if status.Code(err) == codes.Internal || status.Code(err) == codes.Unknown {
			logger.Error("RPC failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("RPC handled", fields...)
		}
		return resp, err
	}
}

func (s *BackendServer) Close() error {
	var err error
	for _, c := range s.closers {
		err = multierr.Append(err, c())
	}
	return err
}

func callerIdentity(ctx context.Context) (identity.Identity, error) {
	id, ok := identity.FromContext(ctx)
	if !ok {
		return identity.Identity{}, status.Error(codes.Unauthenticated, "Unauthorized: anonymous callers cannot perform this action")
	}
	return id, nil
}

func (s *BackendServer) isAdmin(ctx context.Context) bool {
	id, ok := identity.FromContext(ctx)
	return ok && s.admins[id.Principal]
}

func (s *BackendServer) requireAdmin(ctx context.Context) (identity.Identity, error) {
	id, err := callerIdentity(ctx)
	if err != nil {
		return id, err
	}
	if !s.admins[id.Principal] {
		return id, status.Error(codes.PermissionDenied, "Unauthorized: Only admins can perform this action")
	}
	return id, nil
}

func (s *BackendServer) recordAudit(action, principal, entityID string, data bson.M) {
	// Audit log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.audit.CreateAuditLog(ctx, &repository.AuditLog{
			Service:   auditService,
			Action:    action,
			Principal: principal,
			EntityID:  entityID,
			Data:      data,
		})
		if err != nil {
			s.logger.Warn("Failed to write audit log", zap.String("action", action), zap.Error(err))
		}
	}()
}

func internalError(logger *zap.Logger, msg string, err error) error {
	logger.Error(msg, zap.Error(err))
	return status.Error(codes.Internal, msg)
}
