package measurement

// Captured-style records, one per measurement type.

const pingRecord = `{"fw":4790,"lts":18,"dst_name":"193.0.14.129","af":4,"dst_addr":"193.0.14.129",
"src_addr":"192.168.1.10","proto":"ICMP","ttl":55,"size":48,
"result":[{"rtt":21.5},{"rtt":22.1,"dup":1},{"x":"*"}],"step":null,"prb_id":1001,
"timestamp":1700000000,"msm_name":"Ping","msm_id":1001,"type":"ping","group_id":1001,
"min":21.5,"max":22.1,"avg":21.8,"dup":0,"rcvd":2,"sent":3,"bundle":1700000000,
"mver":"2.6.2","from":"203.0.113.7"}`

const tracerouteRecord = `{"fw":4790,"lts":30,"endtime":1700000005,"dst_name":"example.com",
"dst_addr":"93.184.216.34","src_addr":"192.168.1.10","proto":"UDP","af":4,"size":48,"paris_id":1,
"result":[
 {"hop":1,"result":[{"from":"10.0.0.1","ttl":64,"size":76,"rtt":1.2},
                    {"from":"10.0.0.1","ttl":64,"size":76,"rtt":1.1},
                    {},
                    {"from":"10.0.0.2","ttl":64,"size":76,"rtt":1.4,"ittl":2}]},
 {"hop":2,"error":"sendto failed: Network is unreachable"},
 {"hop":3,"result":[{"x":"*"},{"x":"*"},{"x":"*"}]},
 {"hop":4,"result":[{"from":"93.184.216.34","ttl":52,"size":48,"rtt":10.5,"err":"N",
                     "icmpext":{"version":2,"rfc4884":1,"obj":[{"class":1,"type":1,
                       "mpls":[{"exp":0,"label":1234,"s":1,"ttl":1}]}]}},
                    {"from":"93.184.216.34","ttl":52,"size":48,"late":2}]}],
"msm_id":5001,"prb_id":1001,"timestamp":1700000000,"msm_name":"Traceroute",
"from":"203.0.113.7","type":"traceroute","group_id":5001}`

const dnsResultSetRecord = `{"fw":4790,"lts":20,"resultset":[
 {"time":1700000000,"lts":20,"subid":1,"submax":2,"dst_addr":"192.168.1.1","af":4,
  "src_addr":"192.168.1.10","proto":"UDP","qbuf":"q1IBAAABAAAAAAAAB2V4YW1wbGUDY29tAAAGAAE=",
  "result":{"ANCOUNT":1,"ARCOUNT":0,"ID":1,"NSCOUNT":0,"QDCOUNT":1,"rt":5.1,"size":60,
   "answers":[{"TYPE":"SOA","MNAME":"ns.example.com","NAME":"example.com",
     "RNAME":"hostmaster.example.com","SERIAL":2024010101,"TTL":3600}]}},
 {"time":1700000001,"subid":2,"submax":2,"dst_addr":"192.168.1.2","af":4,"proto":"UDP",
  "error":{"timeout":5000}}],
"msm_id":10002,"prb_id":1001,"timestamp":1700000000,"msm_name":"Tdig",
"from":"203.0.113.7","type":"dns","group_id":10002}`

const httpRecord = `{"fw":4790,"lts":12,"uri":"http://example.com/","result":[
 {"af":4,"bsize":1256,"dst_addr":"93.184.216.34","hsize":300,"method":"GET","res":200,"rt":45.2,
  "src_addr":"192.168.1.10","ver":"1.1","header":["HTTP/1.1 200 OK"],
  "readtiming":[{"o":0,"t":40.1},{"o":1256,"t":45.2}],"time":1700000000,"ttc":10.2,"ttfb":40.0},
 {"dnserr":"non-recoverable failure in name resolution"}],
"msm_id":12001,"prb_id":1001,"timestamp":1700000000,"msm_name":"HTTPGet",
"from":"203.0.113.7","type":"http","group_id":12001,"ttr":3.4}`

const ntpRecord = `{"fw":4790,"lts":8,"af":4,"dst_addr":"192.0.2.123","dst_name":"pool.ntp.org",
"dst_port":"123","li":"no","mode":"server","poll":8,"precision":2.4e-7,"proto":"UDP",
"ref-id":"GPS","ref-ts":3909000000.123,
"result":[{"final-ts":3909000010.5,"offset":-0.0012,"origin-ts":3909000010.4,
  "receive-ts":3909000010.45,"rtt":0.02,"transmit-ts":3909000010.46},{"x":"*"}],
"root-delay":0,"root-dispersion":0.001,"stratum":1,"version":4,
"msm_id":13001,"prb_id":1001,"timestamp":1700000000,"msm_name":"Ntp",
"from":"203.0.113.7","type":"ntp","group_id":13001}`

const tlsRecord = `{"fw":4790,"lts":5,"af":4,
"cert":["-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----"],
"dst_addr":"93.184.216.34","dst_name":"example.com","dst_port":"443","method":"TLS","rt":80.1,
"server_cipher":"C02F","ttc":20.3,"ver":"1.2","msm_id":14001,"prb_id":1001,
"timestamp":1700000000,"msm_name":"SSLCert","from":"203.0.113.7","type":"sslcert",
"group_id":14001,"src_addr":"192.168.1.10"}`
