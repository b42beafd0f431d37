package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"winkwink_server/config"
	"winkwink_server/services"
	"winkwink_server/store"
	"winkwink_server/store/dynamostore"
	"winkwink_server/store/memstore"
	"winkwink_server/store/pgstore"
	"winkwink_server/store/redisstore"
)

// Resources are the external clients the process owns
type Resources struct {
	Store     store.Store
	Presigner services.Presigner
	Redis     *goredis.Client

	closers []func()
}

func (r *Resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// LoadAWSConfig loads the default credential chain for the configured region
func LoadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// Open connects the configured store, the S3 presigner and Redis. Redis and S3
// are optional: without them rate limiting and avatar URLs are disabled.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (*Resources, error) {
	res := &Resources{}

	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		c, err := LoadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			return aws.Config{}, err
		}
		awsCfg = &c
		return c, nil
	}

	switch cfg.Storage.Driver {
	case config.DriverDynamo:
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		client := dynamodb.NewFromConfig(c, func(o *dynamodb.Options) {
			if cfg.AWS.DynamoEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.DynamoEndpoint)
			}
		})
		tables := dynamostore.Tables{
			Users:         cfg.AWS.Tables.Users,
			Conversations: cfg.AWS.Tables.Conversations,
			Messages:      cfg.AWS.Tables.Messages,
		}
		if cfg.Storage.Migrate {
			if err := dynamostore.EnsureTables(ctx, client, tables, log); err != nil {
				return nil, err
			}
		}
		res.Store = dynamostore.New(client, tables, log)

	case config.DriverPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		pg := pgstore.New(pool)
		res.closers = append(res.closers, pg.Close)
		if err := pg.Ping(ctx); err != nil {
			res.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		if cfg.Storage.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				res.Close()
				return nil, err
			}
		}
		res.Store = pg

	case config.DriverMemory:
		log.Warn("using in-memory store, data is lost on restart")
		res.Store = memstore.New()

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if cfg.S3.Bucket != "" {
		c, err := loadAWS()
		if err != nil {
			res.Close()
			return nil, err
		}
		res.Presigner = s3.NewPresignClient(s3.NewFromConfig(c))
	} else {
		log.Warn("S3_BUCKET_NAME not set, avatar routes are disabled")
	}

	if cfg.Redis.Addr != "" {
		client := redisstore.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := redisstore.NewRateRepo(client).Ping(ctx); err != nil {
			log.Warn("redis unreachable, continuing without rate limiting", zap.Error(err))
			_ = client.Close()
		} else {
			res.Redis = client
			res.closers = append(res.closers, func() { _ = client.Close() })
		}
	}

	return res, nil
}
