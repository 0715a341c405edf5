package main

import (
	"log"

	"marketplace/internal/audit"
	"marketplace/internal/config"
	"marketplace/internal/database"
	"marketplace/internal/handlers"
	"marketplace/internal/identity"
	"marketplace/internal/orders"
	"marketplace/internal/store"
)

func main() {
	config.Load()
	if err := config.AppEnv.Validate(); err != nil {
		log.Fatal("[SERVER] [ERROR] invalid configuration: ", err)
	}

	var st store.Store
	switch config.AppEnv.StoreDriver {
	case config.StoreMemory:
		log.Println("[SERVER] [WARN] using in-memory store, data is lost on exit")
		st = store.NewMemory(store.WithMaxAttempts(config.AppEnv.TxMaxAttempts))
	default:
		client, err := database.Connect(config.AppEnv.MongoURI)
		if err != nil {
			log.Fatal(err)
		}
		defer database.Disconnect(client)

		db := client.Database(config.AppEnv.DBName)
		log.Println("MongoDB connected to:", db.Name())

		if err := database.EnsureIndexes(db); err != nil {
			log.Printf("[SERVER] [WARN] index bootstrap: %v", err)
		}
		st = store.NewMongo(db)
	}

	sinks := []audit.Sink{audit.StoreSink(st)}
	if len(config.AppEnv.KafkaBrokers) > 0 {
		kafka := audit.NewKafkaSink(config.AppEnv.KafkaBrokers, config.AppEnv.AuditTopic)
		defer kafka.Close()
		sinks = append(sinks, kafka)
		log.Printf("[SERVER] [INFO] publishing audit events to %s on %v", config.AppEnv.AuditTopic, config.AppEnv.KafkaBrokers)
	}
	dispatcher := audit.NewDispatcher(sinks, audit.WithTimeout(config.AppEnv.AuditTimeout))

	engine := orders.NewEngine(st, dispatcher)
	verifier := identity.NewVerifier(config.AppEnv.JWTSecret)
	r := handlers.NewRouter(engine, verifier, st, config.AppEnv.RequestTimeout)

	log.Printf("[SERVER] [INFO] listening on :%s", config.AppEnv.Port)
	if err := r.Run(":" + config.AppEnv.Port); err != nil {
		log.Fatal("[SERVER] [ERROR] ", err)
	}
}
