package api

import (
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/studysphere/studysphere-server/service/groups"
	"github.com/studysphere/studysphere-server/service/posts"
	"github.com/studysphere/studysphere-server/service/translate"
	"github.com/studysphere/studysphere-server/service/user"
	"github.com/studysphere/studysphere-server/service/ws"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

type APIServer struct {
	address string
	db      *gorm.DB
	mongo   *mongo.Database
	ws      *ws.Handler
}

func NewApiServer(address string, db *gorm.DB, mongoDB *mongo.Database) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
		mongo:   mongoDB,
	}
}

func (s *APIServer) Run() error {
	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api/v1").Subrouter()

	userHandler := user.NewHandler(s.db)
	userHandler.RegisterRoutes(subrouter)

	groupHandler := groups.NewGroupHandler(s.db)
	groupHandler.RegisterRoutes(subrouter)

	postRepo := posts.NewMongoPostRepository(s.mongo)

	wsHandler := ws.NewHandler(postRepo)
	wsHandler.RegisterRoutes(router)
	s.ws = wsHandler

	postHandler := posts.NewPostHandler(postRepo, s.db, wsHandler.Hub())
	postHandler.RegisterRoutes(subrouter)

	translateHandler := translate.NewTranslateHandler()
	translateHandler.RegisterRoutes(subrouter)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	log.Println("Server running at", s.address)
	return http.ListenAndServe(s.address, cors(router))
}

// Shutdown stops background components owned by the server.
func (s *APIServer) Shutdown() {
	if s.ws != nil {
		s.ws.Close()
	}
}
