// Package amqp consume los pedidos confirmados que la plataforma de
// e-commerce publica en RabbitMQ y los encola como trabajos de despacho.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"github.com/lacosecha/despacho-api/internal/application/fulfillment"
	"github.com/lacosecha/despacho-api/internal/domain"
	"github.com/lacosecha/despacho-api/internal/domain/entity"
	"github.com/lacosecha/despacho-api/pkg/config"
	"github.com/lacosecha/despacho-api/pkg/logger"
)

const (
	routingKey     = "pedido.confirmado"
	reconnectDelay = 5 * time.Second
)

// orderMessage es el payload que publica el e-commerce al confirmar un pedido.
type orderMessage struct {
	Reference  string `json:"reference"`
	LocationID string `json:"location_id"`
	Lines      []struct {
		ProductID string          `json:"product_id"`
		Quantity  decimal.Decimal `json:"quantity"`
	} `json:"lines"`
}

// Consumer consume pedidos confirmados y crea trabajos de despacho.
type Consumer struct {
	cfg  config.AMQPConfig
	jobs *fulfillment.JobUseCase
	log  *logger.Logger
}

// NewConsumer construye el consumidor.
func NewConsumer(cfg config.AMQPConfig, jobs *fulfillment.JobUseCase, log *logger.Logger) *Consumer {
	return &Consumer{cfg: cfg, jobs: jobs, log: log}
}

// Run conecta y consume hasta que el contexto se cancele. Ante una caída de
// conexión o canal reintenta con espera fija; los errores de conexión nunca
// tumban el proceso.
func (c *Consumer) Run(ctx context.Context) {
	for {
		if err := c.consume(ctx); err != nil {
			c.log.Error().Err(err).Msg("consumidor AMQP desconectado, reintentando")
		}
		select {
		case <-ctx.Done():
			c.log.Info().Msg("consumidor AMQP detenido")
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	queue, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return err
	}
	if err := ch.QueueBind(queue.Name, routingKey, c.cfg.Exchange, false, nil); err != nil {
		return err
	}
	// Un mensaje en vuelo por consumidor: los pedidos se encolan en orden.
	if err := ch.Qos(1, 0, false); err != nil {
		return err
	}

	deliveries, err := ch.Consume(queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	c.log.Info().Str("exchange", c.cfg.Exchange).Str("queue", queue.Name).Msg("consumidor AMQP conectado")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("canal de entregas cerrado")
			}
			c.handle(ctx, d)
		}
	}
}

// handle procesa una entrega. Un payload inválido se descarta sin requeue (no
// va a mejorar por reintentarlo); un fallo transitorio se reencola.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var msg orderMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.log.Warn().Err(err).Msg("pedido con payload inválido, descartado")
		_ = d.Nack(false, false)
		return
	}

	lines := make([]entity.JobLineItem, len(msg.Lines))
	for i, l := range msg.Lines {
		lines[i] = entity.JobLineItem{ProductID: l.ProductID, RequiredQuantity: l.Quantity}
	}
	job, err := c.jobs.CreateJob(ctx, fulfillment.CreateJobInput{
		Reference:  msg.Reference,
		LocationID: msg.LocationID,
		LineItems:  lines,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrDuplicate) {
			c.log.Warn().Err(err).Str("reference", msg.Reference).Msg("pedido rechazado, descartado")
			_ = d.Nack(false, false)
			return
		}
		c.log.Error().Err(err).Str("reference", msg.Reference).Msg("fallo transitorio al encolar pedido, requeue")
		_ = d.Nack(false, true)
		return
	}

	c.log.Info().Str("job_id", job.ID).Str("reference", msg.Reference).Msg("pedido encolado como trabajo de despacho")
	_ = d.Ack(false)
}
