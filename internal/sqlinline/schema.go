package sqlinline

// QEnsureSchema creates the tables the service reads and writes. It is safe to
// run on every start.
const QEnsureSchema = `--sql 095ce9f8-7e25-45ed-b011-2479b7876d33
create table if not exists assets (
    id uuid primary key,
    role text not null check (role in ('PRIMARY', 'SECONDARY')),
    reference_id uuid references assets(id),
    subject text not null default '',
    storage_key text not null,
    mime text not null,
    candidate_key text,
    candidate_mime text,
    analysis jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);

create table if not exists fix_jobs (
    id uuid primary key,
    status text not null,
    asset_ids jsonb not null,
    custom_instruction text not null default '',
    outcomes jsonb not null default '[]'::jsonb,
    error_message text not null default '',
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);

create index if not exists fix_jobs_queued_idx on fix_jobs (created_at) where status = 'QUEUED';

create table if not exists integration_tokens (
    id uuid primary key default gen_random_uuid(),
    provider text not null unique,
    token text not null,
    properties jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`
