package grpc

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	broker "github.com/nemanja-m/inferq/internal/broker/core"
	"github.com/nemanja-m/inferq/internal/shared/config"
	"github.com/nemanja-m/inferq/internal/shared/inferencepb"
	"github.com/nemanja-m/inferq/internal/shared/logging"
)

type Server struct {
	addr         string
	grpcServer   *grpc.Server
	healthServer *health.Server
	logger       logging.Logger
}

func NewServer(
	cfg config.GRPCConfig,
	inferencer broker.Inferencer,
	logger logging.Logger,
) *Server {
	grpcServer := grpc.NewServer(
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             cfg.KeepaliveMinTime,
			PermitWithoutStream: true,
		}),
	)

	inferencepb.RegisterInferenceServiceServer(grpcServer, NewInferenceService(inferencer, logger))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(inferencepb.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	if cfg.EnableReflection {
		reflection.Register(grpcServer)
	}

	return &Server{
		addr:         cfg.Addr,
		grpcServer:   grpcServer,
		healthServer: healthServer,
		logger:       logger,
	}
}

func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("Inference server listening", "addr", lis.Addr().String())
	return s.grpcServer.Serve(lis)
}

func (s *Server) Stop() {
	s.healthServer.Shutdown()
	s.grpcServer.GracefulStop()
}
