package websocket

import (
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"pairsbot/internal/models"
)

// Горячий путь: сериализация каждого spreadUpdate на каждый тик
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Hub управляет активными WebSocket-соединениями панели.
// Broadcast рассылает сообщение всем клиентам; медленный клиент
// (переполненный send-буфер) отключается, а не тормозит остальных.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu  sync.RWMutex
	log *zap.Logger
}

// NewHub создает новый Hub
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
}

// Run запускает главный цикл Hub. Запускать в горутине: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("ws client connected", zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("ws client disconnected", zap.Int("total", total))

		case message := <-h.broadcast:
			// Список клиентов копируется под коротким RLock,
			// отправка идёт без лока
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				h.mu.Unlock()
				h.log.Warn("removed slow ws clients", zap.Int("count", len(toRemove)))
			}
		}
	}
}

// Broadcast сериализует сообщение и рассылает его всем клиентам
func (h *Hub) Broadcast(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.log.Error("marshal broadcast message", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- data:
	default:
		// Очередь рассылки переполнена: сообщение отбрасывается,
		// панель получит следующее обновление
		h.log.Warn("broadcast queue full, message dropped")
	}
}

// BroadcastSpread рассылает точку спреда
func (h *Hub) BroadcastSpread(sample *models.SpreadSample) {
	h.Broadcast(NewSpreadUpdateMessage(sample))
}

// BroadcastSignal рассылает сигнал
func (h *Hub) BroadcastSignal(sig *models.Signal) {
	h.Broadcast(NewSignalUpdateMessage(sig))
}

// BroadcastPosition рассылает изменение позиции
func (h *Hub) BroadcastPosition(pairID int, pos *models.Position) {
	h.Broadcast(NewPositionUpdateMessage(pairID, pos))
}

// BroadcastNotification рассылает уведомление
func (h *Hub) BroadcastNotification(notif *models.Notification) {
	h.Broadcast(NewNotificationMessage(notif))
}

// BroadcastBreaker рассылает состояние circuit breaker
func (h *Hub) BroadcastBreaker(active bool, reason string) {
	h.Broadcast(NewBreakerUpdateMessage(active, reason))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
