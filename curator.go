package main

import (
	"bytes"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/wansing/curator/backend"
	"github.com/wansing/curator/core"
	"github.com/wansing/curator/notify"
	"github.com/wansing/curator/sqldb"
	"github.com/wansing/curator/sqldb/mysql"
	"github.com/wansing/curator/sqldb/sqlite3"
	"github.com/wansing/curator/util"
	"github.com/xo/dburl"
	"golang.org/x/crypto/ssh/terminal"
)

func init() {
	log.SetFlags(0) // no log prefixes, on most systems systemd-journald adds them
}

func main() {

	var dbArg string // is in both FlagSets

	// default FlagSet

	// Your reverse proxy must not strip the prefix. So if you're using nginx, the "proxy_pass" value should not end with a slash.
	var base = flag.String("base", "", "strip off this `prefix` from every HTTP request and prepend it to every link")
	flag.StringVar(&dbArg, "db", "sqlite3:curator.sqlite3?_busy_timeout=10000&_journal=WAL&_sync=NORMAL&cache=shared", "sql database url, see github.com/xo/dburl")
	var hmacKey = flag.String("hmac", "", "use this secret HMAC `key` for signing approval and rejection tokens")
	var linkBase = flag.String("link", "http://127.0.0.1:8080", "absolute `url` prefix for token links in mail")
	var listenAddr = flag.String("listen", "127.0.0.1:8080", "serve HTTP content at this `ip:port`")
	var moderate = flag.Bool("moderate", false, "draft registrations wait for a moderator before voting starts")

	// init FlagSet

	var initFlags = flag.NewFlagSet("init", flag.ExitOnError)

	initFlags.StringVar(&dbArg, "db", "sqlite3:curator.sqlite3?_busy_timeout=10000&_journal=WAL&_sync=NORMAL&cache=shared", "sql database url, see github.com/xo/dburl") // copied from above
	var initConfirm = initFlags.Bool("confirm", false, "marks the given user's mail address as verified")
	var initInsert = initFlags.Bool("insert", false, "creates the given group or user")
	var initJoin = initFlags.Bool("join", false, "joins the given user to the given group")
	var initMakeAdmin = initFlags.Bool("make-admin", false, "gives admin permission on the root node to the given group")
	var groupname = initFlags.String("group", "", "specifies a group `name`")
	var username = initFlags.String("user", "", "specifies a user `name`")

	if len(os.Args) > 1 && os.Args[1] == "init" {
		initFlags.Parse(os.Args[2:])
	} else {
		flag.Parse()
	}

	// database

	dbURL, err := dburl.Parse(dbArg)
	if err != nil {
		log.Printf("could not parse database url: %v", err)
		return
	}

	sqlDB, err := sql.Open(dbURL.Driver, dbURL.DSN)
	if err != nil {
		log.Printf("could not open sql database: %v", err)
		return
	}

	if err = sqlDB.Ping(); err != nil {
		log.Printf("could not ping sql database: %v", err)
		return
	}

	log.Printf("using database %s", dbURL.String())

	// base

	*base = strings.Trim(*base, "/")
	if *base != "" {
		*base = "/" + *base
	}

	// assemble stuff

	var sessionStore scs.Store
	switch dbURL.Driver {
	case "mysql":
		sessionStore = mysql.NewSessionStore(sqlDB)
	case "sqlite3":
		sessionStore = sqlite3.NewSessionStore(sqlDB)
	default:
		log.Printf("unknown database backend: %s", dbURL.Driver)
		return
	}

	db := &core.CoreDB{}
	db.HMACSecret = *hmacKey
	db.LinkBase = strings.TrimSuffix(*linkBase, "/") + *base
	db.ModerateDrafts = *moderate

	db.AccessDB = sqldb.NewAccessDB(sqlDB)
	db.GroupDB = sqldb.NewGroupDB(sqlDB)
	db.NodeDB = sqldb.NewNodeDB(sqlDB)
	db.RecordDB = sqldb.NewRecordDB(sqlDB)
	db.SanctionDB = sqldb.NewSanctionDB(sqlDB) // element and record tables must exist
	db.UserDB = sqldb.NewUserDB(sqlDB)

	if err := db.Init(sessionStore, *base); err != nil {
		log.Println(err) // log.Fatalln would not run deferred functions
		return
	}

	defer func() {
		log.Println("closing database")
		sqlDB.Close()
	}()

	// root node

	if _, err := db.NodeDB.GetNodeByID(1); err != nil {
		if db.NodeDB.IsNotFound(err) {
			if _, err := db.NodeDB.InsertNode(0, core.RootSlug, ""); err != nil {
				log.Printf("error creating root node: %v", err)
				return
			}
			log.Println("created root node")
		} else {
			log.Printf("error getting root node: %v", err)
			return
		}
	}

	// init

	if initFlags.Parsed() {
		switch {
		case *initInsert:
			if *groupname != "" {
				insertGroup(db, *groupname)
			}
			if *username != "" {
				insertUser(db, *username)
			}
		case *initJoin:
			if *groupname != "" && *username != "" {
				join(db, *groupname, *username)
			}
		case *initMakeAdmin:
			if *groupname != "" {
				makeAdmin(db, *groupname)
			}
		case *initConfirm:
			if *username != "" {
				confirm(db, *username)
			}
		}
		return
	}

	// mail

	if mailer, err := notify.NewSMTPMailer(); err == nil {
		var queue = notify.NewQueue(mailer, 256)
		defer queue.Close()
		db.Mailer = queue
	} else {
		log.Printf("mail is logged only: %v", err)
	}

	// embargo expiration check

	var ticker = time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			if ended, err := db.CheckEmbargoExpirations(time.Now()); err != nil {
				log.Printf("error checking embargo expirations: %v", err)
			} else if ended > 0 {
				log.Printf("%d embargoes ended", ended)
			}
		}
	}()

	listen(db, *listenAddr, *base)
}

func insertGroup(db *core.CoreDB, name string) {
	if err := db.InsertGroup(name); err != nil {
		log.Printf(`error creating group "%s": %v`, name, err)
	}
}

func insertUser(db *core.CoreDB, name string) {

	fmt.Printf("password for user %s: ", name)
	pass1, err := terminal.ReadPassword(0)
	fmt.Println()
	if err != nil {
		log.Printf("error reading password: %v", err)
		return
	}

	fmt.Printf("repeat password: ")
	pass2, err := terminal.ReadPassword(0)
	fmt.Println()
	if err != nil {
		log.Printf("error reading password: %v", err)
		return
	}

	if !bytes.Equal(pass1, pass2) {
		log.Printf("passwords don't match")
		return
	}

	user, err := db.InsertUser(name)
	if err != nil {
		log.Printf("error creating user %s: %v", name, err)
		return
	}

	if err := db.SetPassword(user, string(pass1)); err != nil {
		log.Printf("error setting password: %v", err)
		return
	}
}

func join(db *core.CoreDB, groupname string, username string) {

	group, err := db.GetGroupByName(groupname)
	if err != nil {
		log.Printf("error getting group %s: %v", groupname, err)
		return
	}

	user, err := db.GetUserByName(username)
	if err != nil {
		log.Printf("error getting user %s: %v", username, err)
		return
	}

	if err := db.Join(group, user); err != nil {
		log.Printf("error joining: %v", err)
		return
	}
}

func makeAdmin(db *core.CoreDB, groupname string) {

	group, err := db.GetGroupByName(groupname)
	if err != nil {
		log.Printf("error getting group %s: %v", groupname, err)
		return
	}

	if err := db.AccessDB.InsertAccessRule(1, group.ID(), int(core.Admin)); err != nil {
		log.Printf(`error giving root admin permission to group: %v`, err)
		return
	}
}

func confirm(db *core.CoreDB, username string) {

	user, err := db.GetUserByName(username)
	if err != nil {
		log.Printf("error getting user %s: %v", username, err)
		return
	}

	if err := db.Confirm(user); err != nil {
		log.Printf("error confirming user: %v", err)
		return
	}
}

func listen(db *core.CoreDB, addr string, base string) {

	var mux = http.NewServeMux()
	util.HandlePrefix(mux, base+"/", backend.NewBackendRouter(db, base))

	// listener and listen

	sigintChannel := make(chan os.Signal, 1)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Println(err)
		return
	}

	log.Printf("listening to %s", addr)

	httpSrv := &http.Server{
		Handler:      db.SessionManager.LoadAndSave(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := httpSrv.Serve(listener); err != nil {

			// don't panic, we want a graceful shutdown
			if err != http.ErrServerClosed {
				log.Printf("error listening: %v", err)
			}

			// ensure graceful shutdown
			sigintChannel <- os.Interrupt
		}
	}()

	// graceful shutdown

	signal.Notify(sigintChannel, os.Interrupt, syscall.SIGTERM) // SIGINT (Interrupt) or SIGTERM
	<-sigintChannel

	log.Println("shutting down")
	httpSrv.Close()
}
