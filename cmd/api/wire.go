//go:build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/tixgate/eventchat/core"
	"github.com/tixgate/eventchat/x/access"
	"github.com/tixgate/eventchat/x/channel"
	"github.com/tixgate/eventchat/x/event"
	"github.com/tixgate/eventchat/x/message"
	"github.com/tixgate/eventchat/x/profile"
	"github.com/tixgate/eventchat/x/realtime"
)

var eventServiceProvider = wire.NewSet(event.NewService, event.NewRepository)
var profileServiceProvider = wire.NewSet(profile.NewService, profile.NewRepository)
var messageServiceProvider = wire.NewSet(message.NewService, message.NewRepository, profileServiceProvider)

func SetupAccessService(chain core.ChainReader, cache core.AccessCache, config core.Config) core.AccessService {
	wire.Build(access.NewService)
	return nil
}

func SetupMessageService(db *gorm.DB, config core.Config) core.MessageService {
	wire.Build(messageServiceProvider)
	return nil
}

func SetupChannelService(db *gorm.DB, rdb *redis.Client, accessService core.AccessService, limiter core.RateLimiter, config core.Config) core.ChannelService {
	wire.Build(channel.NewService, eventServiceProvider, messageServiceProvider, realtime.NewService)
	return nil
}

func SetupChannelHandler(channelService core.ChannelService) channel.Handler {
	wire.Build(channel.NewHandler)
	return nil
}

func SetupSocketHandler(rdb *redis.Client, channelService core.ChannelService, config core.Config) realtime.Handler {
	wire.Build(realtime.NewHandler, realtime.NewService)
	return nil
}
