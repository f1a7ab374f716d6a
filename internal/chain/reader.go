package chain

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolscope/internal/model"
)

// PoolReader assembles PoolRecords from direct contract calls: factory
// getPool, then slot0/liquidity/fee/tickSpacing on the pool, plus ERC20
// metadata for both tokens. USD-denominated aggregates are not observable
// on-chain and stay empty.
type PoolReader struct {
	clients   map[uint64]*Client
	factories map[uint64]common.Address
	logger    *zap.Logger

	mu     sync.RWMutex
	tokens map[common.Address]model.Token
}

// NewPoolReader builds a PoolReader over per-chain clients and factory
// addresses.
func NewPoolReader(clients map[uint64]*Client, factories map[uint64]string, logger *zap.Logger) *PoolReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	parsed := make(map[uint64]common.Address, len(factories))
	for chainID, addr := range factories {
		parsed[chainID] = common.HexToAddress(addr)
	}
	return &PoolReader{
		clients:   clients,
		factories: parsed,
		logger:    logger,
		tokens:    make(map[common.Address]model.Token),
	}
}

// GetPoolOnChain resolves a (tokenA, tokenB, fee) tuple through the chain's
// factory. Returns ErrNotFound when no pool is deployed for the tuple.
func (r *PoolReader) GetPoolOnChain(ctx context.Context, chainID uint64, tokenA, tokenB string, fee uint32) (*model.PoolRecord, error) {
	client, factory, err := r.chainHandles(chainID)
	if err != nil {
		return nil, err
	}

	factoryABI, err := FactoryABI()
	if err != nil {
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}

	lo, hi := model.CanonicalPair(tokenA, tokenB)
	data, err := factoryABI.Pack("getPool", common.HexToAddress(lo), common.HexToAddress(hi), big.NewInt(int64(fee)))
	if err != nil {
		return nil, fmt.Errorf("pack getPool: %w", err)
	}

	resp, err := client.CallContract(ctx, ethereum.CallMsg{To: &factory, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call getPool: %w", err)
	}
	values, err := factoryABI.Unpack("getPool", resp)
	if err != nil {
		return nil, fmt.Errorf("unpack getPool: %w", err)
	}
	poolAddr, err := asAddress(values[0])
	if err != nil {
		return nil, fmt.Errorf("getPool result: %w", err)
	}
	if poolAddr == (common.Address{}) {
		return nil, model.ErrNotFound
	}

	return r.ReadPool(ctx, chainID, poolAddr.Hex())
}

// ReadPool loads current pool state by contract address.
func (r *PoolReader) ReadPool(ctx context.Context, chainID uint64, address string) (*model.PoolRecord, error) {
	client, _, err := r.chainHandles(chainID)
	if err != nil {
		return nil, err
	}

	poolABI, err := PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}

	pool := common.HexToAddress(address)

	token0, err := r.callAddress(ctx, client, pool, poolABI, "token0")
	if err != nil {
		return nil, err
	}
	token1, err := r.callAddress(ctx, client, pool, poolABI, "token1")
	if err != nil {
		return nil, err
	}

	feeValues, err := callMethod(ctx, client, pool, poolABI, "fee")
	if err != nil {
		return nil, err
	}
	feeInt, err := asBigInt(feeValues[0])
	if err != nil {
		return nil, fmt.Errorf("fee: %w", err)
	}

	spacingValues, err := callMethod(ctx, client, pool, poolABI, "tickSpacing")
	if err != nil {
		return nil, err
	}
	spacingInt, err := asBigInt(spacingValues[0])
	if err != nil {
		return nil, fmt.Errorf("tick spacing: %w", err)
	}
	tickSpacing, err := int24FromBig(spacingInt)
	if err != nil {
		return nil, fmt.Errorf("tick spacing: %w", err)
	}

	record := &model.PoolRecord{
		Address:     pool.Hex(),
		ChainID:     chainID,
		FeeTier:     uint32(feeInt.Uint64()),
		TickSpacing: tickSpacing,
	}

	if values, err := callMethod(ctx, client, pool, poolABI, "liquidity"); err == nil {
		if liq, err := asBigInt(values[0]); err == nil {
			record.Liquidity = liq.String()
		}
	} else {
		r.logger.Debug("liquidity call failed", zap.String("pool", pool.Hex()), zap.Error(err))
	}

	if values, err := callMethod(ctx, client, pool, poolABI, "slot0"); err == nil && len(values) >= 2 {
		if sqrt, err := asBigInt(values[0]); err == nil {
			record.SqrtPriceX96 = sqrt.String()
		}
		if tickInt, err := asBigInt(values[1]); err == nil {
			if tick, err := int24FromBig(tickInt); err == nil {
				record.Tick = tick
			}
		}
	} else if err != nil {
		r.logger.Debug("slot0 call failed", zap.String("pool", pool.Hex()), zap.Error(err))
	}

	record.TokenA = r.tokenMeta(ctx, client, token0)
	record.TokenB = r.tokenMeta(ctx, client, token1)
	record.Canonicalize()

	return record, nil
}

func (r *PoolReader) chainHandles(chainID uint64) (*Client, common.Address, error) {
	client, ok := r.clients[chainID]
	if !ok || client == nil {
		return nil, common.Address{}, fmt.Errorf("no rpc client for chain %d", chainID)
	}
	factory, ok := r.factories[chainID]
	if !ok {
		return nil, common.Address{}, fmt.Errorf("no factory address for chain %d", chainID)
	}
	return client, factory, nil
}

// tokenMeta loads ERC20 metadata, serving repeats from an in-memory cache.
// Metadata failures degrade to an address-only token.
func (r *PoolReader) tokenMeta(ctx context.Context, client *Client, token common.Address) model.Token {
	r.mu.RLock()
	meta, ok := r.tokens[token]
	r.mu.RUnlock()
	if ok {
		return meta
	}

	meta, err := fetchTokenMeta(ctx, client, token)
	if err != nil {
		r.logger.Warn("token metadata fetch failed", zap.String("token", token.Hex()), zap.Error(err))
		meta = model.Token{Address: token.Hex()}
	}

	r.mu.Lock()
	r.tokens[token] = meta
	r.mu.Unlock()

	return meta
}

// fetchTokenMeta reads decimals/symbol/name, trying string outputs first and
// bytes32 variants for legacy tokens.
func fetchTokenMeta(ctx context.Context, client *Client, token common.Address) (model.Token, error) {
	meta := model.Token{Address: token.Hex()}

	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := callMethod(ctx, client, token, stringABI, "decimals")
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	if values, err := callMethod(ctx, client, token, stringABI, "symbol"); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := callMethod(ctx, client, token, bytes32ABI, "symbol"); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	}

	if values, err := callMethod(ctx, client, token, stringABI, "name"); err == nil {
		if name, ok := values[0].(string); ok {
			meta.Name = name
		}
	} else if values, err := callMethod(ctx, client, token, bytes32ABI, "name"); err == nil {
		if name, ok := bytes32ToString(values[0]); ok {
			meta.Name = name
		}
	}

	return meta, nil
}

func (r *PoolReader) callAddress(ctx context.Context, client *Client, contract common.Address, parsed abi.ABI, method string) (common.Address, error) {
	values, err := callMethod(ctx, client, contract, parsed, method)
	if err != nil {
		return common.Address{}, err
	}
	addr, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", method, err)
	}
	return addr, nil
}

func callMethod(ctx context.Context, client *Client, contract common.Address, parsed abi.ABI, method string) ([]interface{}, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &contract, Data: data}
	resp, err := client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}

func int24FromBig(value *big.Int) (int32, error) {
	min := big.NewInt(-1 << 23)
	max := big.NewInt((1 << 23) - 1)
	if value.Cmp(min) < 0 || value.Cmp(max) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value.String())
	}
	return int32(value.Int64()), nil
}
