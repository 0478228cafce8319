package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"microlearning-services/internal/domain"
	"microlearning-services/internal/infra/metrics"
)

// Outcome — исход обработки одной доставки.
type Outcome int

const (
	// OutcomeProcessed — событие обработано, доставку можно подтвердить.
	OutcomeProcessed Outcome = iota
	// OutcomeDuplicate — повторная доставка уже обработанного события.
	OutcomeDuplicate
	// OutcomeDropped — доставка недекодируема, повтор не нужен.
	OutcomeDropped
	// OutcomeRetry — обработка сорвалась, брокер должен доставить снова.
	OutcomeRetry
)

// HandlerFunc обрабатывает декодированное событие.
type HandlerFunc func(ctx context.Context, ev domain.Event) error

// Router направляет доставки брокера зарегистрированным обработчикам тем.
// Транспорт (HTTP-маршрут подписки или очередь AMQP) передаёт сырое тело
// в Dispatch и транслирует исход в свой ответ или подтверждение.
type Router struct {
	log      zerolog.Logger
	handlers map[domain.Topic]HandlerFunc
	deduper  domain.Deduper
	dedupTTL time.Duration
}

// RouterOption настраивает роутер.
type RouterOption func(*Router)

// WithDeduper включает подавление повторных доставок по идентификатору
// конверта. Без него повторная доставка обрабатывается заново.
func WithDeduper(d domain.Deduper, ttl time.Duration) RouterOption {
	return func(r *Router) {
		r.deduper = d
		if ttl > 0 {
			r.dedupTTL = ttl
		}
	}
}

// NewRouter создаёт роутер событий.
func NewRouter(logger zerolog.Logger, opts ...RouterOption) *Router {
	r := &Router{
		log:      logger,
		handlers: make(map[domain.Topic]HandlerFunc),
		dedupTTL: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle регистрирует обработчик темы. Регистрация происходит на старте,
// до запуска транспортов, поэтому карта не защищена мьютексом.
func (r *Router) Handle(topic domain.Topic, fn HandlerFunc) {
	r.handlers[topic] = fn
}

// Dispatch декодирует тело одной доставки и вызывает обработчик её темы.
// Конверт без темы наследует тему маршрута routeTopic. Ошибки декодирования
// и темы без обработчика терминальны, ошибки обработчика ведут к повтору.
func (r *Router) Dispatch(ctx context.Context, body []byte, routeTopic domain.Topic) Outcome {
	env, err := DecodeEnvelope(body)
	if err != nil {
		r.log.Warn().Err(err).Str("route_topic", string(routeTopic)).Msg("события: конверт не декодируется, доставка сброшена")
		metrics.IncEventProcessed(string(routeTopic), "dropped")
		return OutcomeDropped
	}
	if env.Topic == "" {
		env.Topic = routeTopic
	}
	ev, err := DecodeEvent(env)
	if err != nil {
		r.log.Warn().Err(err).Str("topic", string(env.Topic)).Str("event_id", env.ID).Msg("события: payload не декодируется, доставка сброшена")
		metrics.IncEventProcessed(string(env.Topic), "dropped")
		return OutcomeDropped
	}

	evLog := r.log.With().Str("topic", string(ev.Topic)).Str("event_id", env.ID).Logger()

	handler, ok := r.handlers[ev.Topic]
	if !ok {
		evLog.Warn().Msg("события: для темы нет обработчика, доставка сброшена")
		metrics.IncEventProcessed(string(ev.Topic), "dropped")
		return OutcomeDropped
	}

	if r.deduper != nil && env.ID != "" {
		key := fmt.Sprintf("events:seen:%s:%s", ev.Topic, env.ID)
		ran, err := r.deduper.Once(key, r.dedupTTL, func() error {
			return handler(ctx, ev)
		})
		if err != nil {
			evLog.Error().Err(err).Msg("события: обработка сорвалась, ждём повторную доставку")
			metrics.IncEventProcessed(string(ev.Topic), "retry")
			return OutcomeRetry
		}
		if !ran {
			evLog.Info().Msg("события: повторная доставка, уже обработано")
			metrics.IncEventProcessed(string(ev.Topic), "duplicate")
			return OutcomeDuplicate
		}
		metrics.IncEventProcessed(string(ev.Topic), "processed")
		return OutcomeProcessed
	}

	if err := handler(ctx, ev); err != nil {
		evLog.Error().Err(err).Msg("события: обработка сорвалась, ждём повторную доставку")
		metrics.IncEventProcessed(string(ev.Topic), "retry")
		return OutcomeRetry
	}
	metrics.IncEventProcessed(string(ev.Topic), "processed")
	return OutcomeProcessed
}

// Статусы подтверждения в ответе маршрута подписки.
const (
	ackSuccess = "SUCCESS"
	ackRetry   = "RETRY"
	ackDrop    = "DROP"
)

type ackResponse struct {
	Status string `json:"status"`
}

// ServeTopic возвращает HTTP-обработчик маршрута подписки на тему.
// Контракт подтверждений: SUCCESS подтверждает доставку, DROP сбрасывает
// сообщение без повтора, RETRY запрашивает повторную доставку.
func (r *Router) ServeTopic(topic domain.Topic) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			writeAck(w, http.StatusBadRequest, ackDrop)
			return
		}
		switch r.Dispatch(req.Context(), body, topic) {
		case OutcomeProcessed, OutcomeDuplicate:
			writeAck(w, http.StatusOK, ackSuccess)
		case OutcomeRetry:
			writeAck(w, http.StatusInternalServerError, ackRetry)
		default:
			writeAck(w, http.StatusBadRequest, ackDrop)
		}
	}
}

func writeAck(w http.ResponseWriter, status int, ack string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ackResponse{Status: ack})
}
