package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/redis/go-redis/v9"

	"github.com/tbxark/formcopilot/agent"
	"github.com/tbxark/formcopilot/engine"
	"github.com/tbxark/formcopilot/engine/gemini"
	"github.com/tbxark/formcopilot/intent"
	"github.com/tbxark/formcopilot/submit"
)

func setupLogger(conf *Config) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: conf.SlogLevel()})
	slog.SetDefault(slog.New(handler))
}

func newChatModel(ctx context.Context, conf *Config, provider, apiKey, baseURL, modelName string) (model.ToolCallingChatModel, error) {
	switch provider {
	case ProviderGemini:
		return gemini.NewChatModel(ctx, &gemini.Config{
			APIKey: apiKey,
			Model:  modelName,
		})
	default:
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:  apiKey,
			Model:   modelName,
			BaseURL: baseURL,
			Timeout: conf.Timeout(),
		})
	}
}

func newEngine(ctx context.Context, conf *Config) (engine.Engine, model.ToolCallingChatModel, error) {
	cm, err := newChatModel(ctx, conf, conf.Provider, conf.APIKey, conf.BaseURL, conf.Model)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s chat model: %w", conf.Provider, err)
	}
	var eng engine.Engine = engine.NewRetryEngine(
		engine.NewChatEngine(cm, engine.WithTimeout(conf.Timeout())),
		conf.MaxRetries,
	)
	if fb := conf.Fallback; fb.Provider != "" {
		fbModel, fErr := newChatModel(ctx, conf, fb.Provider, fb.APIKey, fb.BaseURL, fb.Model)
		if fErr != nil {
			return nil, nil, fmt.Errorf("create fallback %s chat model: %w", fb.Provider, fErr)
		}
		eng = engine.NewFailbackEngine(eng, engine.NewChatEngine(fbModel, engine.WithTimeout(conf.Timeout())))
	}
	return eng, cm, nil
}

// buildFlow wires the configured engine, recognizer and submitter. The
// returned cleanup releases the Redis client when one was opened.
func buildFlow(ctx context.Context, conf *Config) (*agent.FormFlow, func(), error) {
	eng, cm, err := newEngine(ctx, conf)
	if err != nil {
		return nil, nil, err
	}
	opts := []agent.Option{}

	if conf.IntentMode == IntentTool {
		recognizer, rErr := intent.NewToolBasedRecognizer(cm)
		if rErr != nil {
			return nil, nil, rErr
		}
		opts = append(opts, agent.WithRecognizer(intent.NewFailbackRecognizer(recognizer, intent.NewLocalRecognizer())))
	}

	cleanup := func() {}
	if conf.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: conf.RedisAddr})
		if pErr := client.Ping(ctx).Err(); pErr != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", pErr)
		}
		sub, sErr := submit.NewRedisStreamSubmitter(client, conf.RedisStream, submit.WithMaxLen(10000))
		if sErr != nil {
			_ = client.Close()
			return nil, nil, sErr
		}
		opts = append(opts, agent.WithSubmitter(sub))
		cleanup = func() { _ = client.Close() }
	}

	flow, err := agent.NewFormFlow(eng, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return flow, cleanup, nil
}
