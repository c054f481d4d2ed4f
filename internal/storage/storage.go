package storage // 各存储组件的统一装配入口

import (
	"fmt"
	"log"
	"os"

	"apply-agent-go/internal/config"
	"apply-agent-go/internal/logger"
)

// Storage 聚合全部存储组件。MySQL是硬依赖；
// Redis、MinIO、RabbitMQ初始化失败时降级为nil并告警，调用方需判空
type Storage struct {
	MySQL    *MySQL
	Redis    *Redis
	MinIO    *MinIO
	RabbitMQ *RabbitMQ
}

// NewStorage 按配置装配存储层
func NewStorage(cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	s := &Storage{}

	mysqlDB, err := NewMySQL(&cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("初始化MySQL失败: %w", err)
	}
	s.MySQL = mysqlDB

	redisClient, err := NewRedisAdapter(&cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Msg("初始化Redis失败，映射缓存与会话快照不可用")
	} else {
		s.Redis = redisClient
	}

	minioClient, err := NewMinIO(&cfg.MinIO, log.New(os.Stderr, "[MinIO] ", log.LstdFlags))
	if err != nil {
		logger.Warn().Err(err).Msg("初始化MinIO失败，简历文件存取不可用")
	} else {
		s.MinIO = minioClient
	}

	mq, err := NewRabbitMQ(&cfg.RabbitMQ)
	if err != nil {
		logger.Warn().Err(err).Msg("初始化RabbitMQ失败，申请事件不发布")
	} else {
		s.RabbitMQ = mq
	}

	return s, nil
}

// Close 逆序释放全部组件
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			logger.Warn().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Warn().Err(err).Msg("关闭Redis连接失败")
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			logger.Warn().Err(err).Msg("关闭MySQL连接失败")
		}
	}
}
