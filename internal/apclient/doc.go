// Package apclient реализует WebSocket-клиент протокола Archipelago.
// Клиент подключается к серверу (wss:// или ws://), проходит рукопожатие
// (RoomInfo → GetDataPackage → Connect → Connected) и затем делится на две
// половины: Sender пишет пакеты, Receiver читает. Кадры — JSON-массивы
// пакетов вида {"cmd": "...", ...}.
//
// Безопасность и устойчивость:
//   - Запись в сокет сериализована (мьютекс + write-deadline).
//   - Keep-alive: ping каждые 15s, дедлайн чтения продлевается на pong и на
//     каждый кадр.
//   - Битый пакет не рвёт соединение: Recv вернёт ErrMalformed, чтение
//     можно продолжать.
//   - Реконнекта нет: обрыв — конец сессии, решение принимает вызывающий.
//
// Пример:
//
//	c, err := apclient.Dial(ctx, "localhost:38281")
//	if err != nil { log.Fatal(err) }
//	defer c.Close()
//
//	_ = c.FetchDataPackage(ctx, "APBot")
//	conn, err := c.Connect(ctx, apclient.ConnectParams{Game: "APBot", Name: "Bot1", ItemsHandling: 7})
//	if err != nil { log.Fatal(err) }
//
//	send, recv := c.Split()
//	go func() {
//	    for {
//	        pkt, err := recv.Recv(ctx)
//	        if err != nil { return }
//	        fmt.Println(pkt.Command())
//	    }
//	}()
//	_ = send.CheckLocations(ctx, conn.MissingLocations[0])
package apclient
