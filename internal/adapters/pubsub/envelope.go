package pubsub

import (
	"bytes"
	"encoding/json"
	"errors"

	"microlearning-services/internal/domain"
)

// Ошибки декодирования доставки. Все они терминальные: брокер не должен
// доставлять такое сообщение повторно.
var (
	ErrMissingEnvelope  = errors.New("event envelope is missing")
	ErrMissingPayload   = errors.New("event payload is missing")
	ErrUnknownTopic     = errors.New("unknown event topic")
	ErrMalformedPayload = errors.New("event payload is malformed")
)

// Envelope — конверт события в стиле CloudEvents, в котором сайдкар
// доставляет сообщения на HTTP-маршруты и в очереди.
type Envelope struct {
	ID              string          `json:"id"`
	Source          string          `json:"source,omitempty"`
	Type            string          `json:"type,omitempty"`
	SpecVersion     string          `json:"specversion,omitempty"`
	DataContentType string          `json:"datacontenttype,omitempty"`
	PubsubName      string          `json:"pubsubname,omitempty"`
	Topic           domain.Topic    `json:"topic"`
	Data            json.RawMessage `json:"data"`
}

// DecodeEnvelope разбирает тело доставки в конверт. Пустое или нечитаемое
// тело — ErrMissingEnvelope, конверт без поля data — ErrMissingPayload.
// Остальные поля конверта необязательны.
func DecodeEnvelope(body []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Envelope{}, ErrMissingEnvelope
	}
	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Envelope{}, ErrMissingEnvelope
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Envelope{}, ErrMissingPayload
	}
	return env, nil
}

// DecodeEvent разбирает данные конверта в типизированное событие по теме.
// Отсутствующие поля данных получают нулевые значения: продюсеру доверяем.
// Неизвестная тема или данные, не соответствующие схеме темы, терминальны.
func DecodeEvent(env Envelope) (domain.Event, error) {
	switch env.Topic {
	case domain.TopicQuizCompleted:
		var payload domain.QuizCompletedEvent
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return domain.Event{}, ErrMalformedPayload
		}
		return domain.Event{Topic: env.Topic, QuizCompleted: &payload}, nil
	case domain.TopicLessonCompleted:
		var payload domain.LessonCompletedEvent
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return domain.Event{}, ErrMalformedPayload
		}
		return domain.Event{Topic: env.Topic, LessonCompleted: &payload}, nil
	case domain.TopicCourseCreated:
		var payload domain.CourseCreatedEvent
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return domain.Event{}, ErrMalformedPayload
		}
		return domain.Event{Topic: env.Topic, CourseCreated: &payload}, nil
	default:
		return domain.Event{}, ErrUnknownTopic
	}
}
