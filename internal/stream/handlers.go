package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func RegisterRoutes(r fiber.Router, hub *Hub) {
	r.Get("/spots", websocket.New(func(c *websocket.Conn) {
		watcher := hub.Register()
		defer hub.Unregister(watcher)

		done := make(chan struct{})
		go func() {
			for msg := range watcher.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			close(done)
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		// Closing the Send channel releases the writer goroutine.
		hub.Unregister(watcher)
		<-done
	}))
}
